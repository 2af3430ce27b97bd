package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/homework-review-api/internal/models"
)

const teacherColumns = `id, username, password_hash, subject, enable_ai_review, created_at, updated_at`

// TeacherRepository manages teacher accounts.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns every teacher with their homework count.
func (r *TeacherRepository) List(ctx context.Context) ([]models.TeacherSummary, error) {
	const query = `SELECT t.id, t.username, t.password_hash, t.subject, t.enable_ai_review, t.created_at, t.updated_at,
(SELECT COUNT(*) FROM homeworks h WHERE h.teacher_id = t.id) AS homework_count
FROM teachers t ORDER BY t.created_at ASC`
	var teachers []models.TeacherSummary
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1`, teacherColumns), id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindByUsername fetches a teacher by login name.
func (r *TeacherRepository) FindByUsername(ctx context.Context, username string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, fmt.Sprintf(`SELECT %s FROM teachers WHERE username = $1`, teacherColumns), username); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByUsername checks if a username is taken, optionally excluding an ID.
func (r *TeacherRepository) ExistsByUsername(ctx context.Context, username, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE username = $1"
	args := []interface{}{username}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher username: %w", err)
	}
	return true, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, username, password_hash, subject, enable_ai_review, created_at, updated_at)
VALUES (:id, :username, :password_hash, :subject, :enable_ai_review, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update modifies an existing teacher.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET username = :username, password_hash = :password_hash, subject = :subject,
enable_ai_review = :enable_ai_review, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, teacher)
	if err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleAIReview flips the per-teacher AI review switch and returns the new value.
func (r *TeacherRepository) ToggleAIReview(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE teachers SET enable_ai_review = NOT enable_ai_review, updated_at = $2 WHERE id = $1 RETURNING enable_ai_review`
	var enabled bool
	if err := r.db.GetContext(ctx, &enabled, query, id, time.Now().UTC()); err != nil {
		return false, err
	}
	return enabled, nil
}

// FindByHomework fetches the teacher owning a homework.
func (r *TeacherRepository) FindByHomework(ctx context.Context, homeworkID string) (*models.Teacher, error) {
	const query = `SELECT t.id, t.username, t.password_hash, t.subject, t.enable_ai_review, t.created_at, t.updated_at
FROM teachers t JOIN homeworks h ON h.teacher_id = t.id WHERE h.id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, homeworkID); err != nil {
		return nil, err
	}
	return &teacher, nil
}
