package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/homework-review-api/internal/models"
)

const homeworkColumns = `h.id, h.teacher_id, h.subject, h.title, h.ai_prompt, h.max_images, h.created_at`

// HomeworkRepository persists homework assignments.
type HomeworkRepository struct {
	db *sqlx.DB
}

// NewHomeworkRepository constructs a HomeworkRepository.
func NewHomeworkRepository(db *sqlx.DB) *HomeworkRepository {
	return &HomeworkRepository{db: db}
}

// Create inserts a homework.
func (r *HomeworkRepository) Create(ctx context.Context, homework *models.Homework) error {
	if homework.ID == "" {
		homework.ID = uuid.NewString()
	}
	if homework.CreatedAt.IsZero() {
		homework.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO homeworks (id, teacher_id, subject, title, ai_prompt, max_images, created_at)
VALUES (:id, :teacher_id, :subject, :title, :ai_prompt, :max_images, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, homework); err != nil {
		return fmt.Errorf("create homework: %w", err)
	}
	return nil
}

// FindByID fetches a homework by ID.
func (r *HomeworkRepository) FindByID(ctx context.Context, id string) (*models.Homework, error) {
	query := fmt.Sprintf(`SELECT %s FROM homeworks h WHERE h.id = $1`, homeworkColumns)
	var homework models.Homework
	if err := r.db.GetContext(ctx, &homework, query, id); err != nil {
		return nil, err
	}
	return &homework, nil
}

// List returns homework summaries newest first.
func (r *HomeworkRepository) List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkSummary, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("h.teacher_id = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("h.created_at >= $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		conditions = append(conditions, fmt.Sprintf("h.created_at < $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s, t.username AS teacher_name,
(SELECT COUNT(*) FROM students) AS total_students,
(SELECT COUNT(*) FROM submissions s WHERE s.homework_id = h.id) AS submitted_count
FROM homeworks h JOIN teachers t ON t.id = h.teacher_id
WHERE %s ORDER BY h.created_at DESC LIMIT %d OFFSET %d`, homeworkColumns, where, size, (page-1)*size)

	var items []models.HomeworkSummary
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list homeworks: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM homeworks h WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count homeworks: %w", err)
	}
	return items, total, nil
}

// ListCreatedBetween returns homework created in [from, to) ordered by subject.
func (r *HomeworkRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Homework, error) {
	query := fmt.Sprintf(`SELECT %s FROM homeworks h WHERE h.created_at >= $1 AND h.created_at < $2 ORDER BY h.subject, h.created_at`, homeworkColumns)
	var items []models.Homework
	if err := r.db.SelectContext(ctx, &items, query, from, to); err != nil {
		return nil, fmt.Errorf("list homeworks between: %w", err)
	}
	return items, nil
}

// CountCreatedBefore counts homework created strictly before t.
func (r *HomeworkRepository) CountCreatedBefore(ctx context.Context, t time.Time) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM homeworks WHERE created_at < $1`, t); err != nil {
		return 0, fmt.Errorf("count homeworks before: %w", err)
	}
	return count, nil
}

// CreatedDates returns the distinct local calendar days (YYYY-MM-DD) on which teacherID posted
// homework, newest first.
func (r *HomeworkRepository) CreatedDates(ctx context.Context, teacherID string, loc *time.Location) ([]string, error) {
	if loc == nil {
		loc = time.UTC
	}
	const query = `SELECT DISTINCT to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD') AS day
FROM homeworks WHERE teacher_id = $1 ORDER BY day DESC`
	dates := []string{}
	if err := r.db.SelectContext(ctx, &dates, query, teacherID, loc.String()); err != nil {
		return nil, fmt.Errorf("list homework dates: %w", err)
	}
	return dates, nil
}
