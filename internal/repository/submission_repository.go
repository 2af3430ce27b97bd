package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/homework-review-api/internal/models"
)

const submissionColumns = `id, student_id, homework_id, submitted_at, ai_review_status, ai_review_result, ai_reviewed_at, review_started_at`

// SubmissionRepository persists submissions and their review state.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// GetOrCreate returns the submission for the pair, inserting a pending one when absent.
func (r *SubmissionRepository) GetOrCreate(ctx context.Context, studentID, homeworkID string) (*models.Submission, bool, error) {
	now := time.Now().UTC()
	insert := fmt.Sprintf(`INSERT INTO submissions (id, student_id, homework_id, submitted_at, ai_review_status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, homework_id) DO NOTHING
RETURNING %s`, submissionColumns)

	var submission models.Submission
	err := r.db.GetContext(ctx, &submission, insert, uuid.NewString(), studentID, homeworkID, now, models.ReviewPending)
	if err == nil {
		return &submission, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create submission: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE student_id = $1 AND homework_id = $2`, submissionColumns)
	if err := r.db.GetContext(ctx, &submission, query, studentID, homeworkID); err != nil {
		return nil, false, fmt.Errorf("load existing submission: %w", err)
	}
	return &submission, false, nil
}

// FindByID fetches a submission by ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Transition applies update only when the row is currently in one of the legal source states.
// It reports false when the row is missing or in another state.
func (r *SubmissionRepository) Transition(ctx context.Context, id string, update models.StatusUpdate) (bool, error) {
	sources := models.SourcesFor(update.To, update.Trigger)
	if len(sources) == 0 {
		return false, fmt.Errorf("transition to %s via %s: %w", update.To, update.Trigger, errIllegalTransition)
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var query string
	if update.To == models.ReviewReviewing {
		query = `UPDATE submissions SET ai_review_status = $1, ai_review_result = $2, ai_reviewed_at = NULL, review_started_at = $3
WHERE id = $4 AND ai_review_status = ANY($5)`
	} else {
		query = `UPDATE submissions SET ai_review_status = $1, ai_review_result = $2, ai_reviewed_at = $3
WHERE id = $4 AND ai_review_status = ANY($5)`
	}

	res, err := r.db.ExecContext(ctx, query, update.To, nullableString(update.Diagnostic), at, id, pq.Array(statusStrings(sources)))
	if err != nil {
		return false, fmt.Errorf("transition submission to %s: %w", update.To, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetDiagnostic rewrites ai_review_result while the row is still in status.
func (r *SubmissionRepository) SetDiagnostic(ctx context.Context, id string, status models.ReviewStatus, diagnostic string) (bool, error) {
	const query = `UPDATE submissions SET ai_review_result = $1 WHERE id = $2 AND ai_review_status = $3`
	res, err := r.db.ExecContext(ctx, query, diagnostic, id, status)
	if err != nil {
		return false, fmt.Errorf("set submission diagnostic: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("diagnostic rows affected: %w", err)
	}
	return affected == 1, nil
}

// TimeoutStale moves reviews started before cutoff to error and returns the number of rows changed.
func (r *SubmissionRepository) TimeoutStale(ctx context.Context, cutoff, at time.Time, diagnostic string) (int64, error) {
	sources := models.SourcesFor(models.ReviewError, models.TriggerTimeout)
	const query = `UPDATE submissions SET ai_review_status = $1, ai_review_result = $2, ai_reviewed_at = $3
WHERE ai_review_status = ANY($4) AND COALESCE(review_started_at, submitted_at) < $5`
	res, err := r.db.ExecContext(ctx, query, models.ReviewError, diagnostic, at, pq.Array(statusStrings(sources)), cutoff)
	if err != nil {
		return 0, fmt.Errorf("timeout stale reviews: %w", err)
	}
	return res.RowsAffected()
}

// DeleteEmpty removes submissions created before cutoff that own no images.
// Rows locked by an in-flight image upload are skipped until the next sweep.
func (r *SubmissionRepository) DeleteEmpty(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `WITH doomed AS (
SELECT s.id FROM submissions s
WHERE s.submitted_at < $1 AND NOT EXISTS (SELECT 1 FROM submission_images i WHERE i.submission_id = s.id)
FOR UPDATE SKIP LOCKED
)
DELETE FROM submissions WHERE id IN (SELECT id FROM doomed)`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete empty submissions: %w", err)
	}
	return res.RowsAffected()
}

// ListDetails returns joined submission rows for teacher views.
func (r *SubmissionRepository) ListDetails(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	base := `FROM submissions s
JOIN students st ON st.id = s.student_id
JOIN homeworks h ON h.id = s.homework_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("h.teacher_id = $%d", len(args)))
	}
	if filter.HomeworkID != "" {
		args = append(args, filter.HomeworkID)
		conditions = append(conditions, fmt.Sprintf("s.homework_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		conditions = append(conditions, fmt.Sprintf("s.ai_review_status = ANY($%d)", len(args)))
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT s.id, s.student_id, s.homework_id, s.submitted_at, s.ai_review_status, s.ai_review_result, s.ai_reviewed_at, s.review_started_at,
st.name AS student_name, st.student_no, h.title AS homework_title, h.subject AS homework_subject,
(SELECT COUNT(*) FROM submission_images i WHERE i.submission_id = s.id) AS image_count
%s ORDER BY s.submitted_at DESC LIMIT %d OFFSET %d`, base, size, (page-1)*size)

	var items []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return items, total, nil
}

// BoardCells returns one row per (student, homework) for homework created in [from, to).
func (r *SubmissionRepository) BoardCells(ctx context.Context, from, to time.Time) ([]models.BoardCell, error) {
	const query = `SELECT st.id AS student_id, h.id AS homework_id, s.id AS submission_id, s.submitted_at, s.ai_review_status, s.ai_review_result,
COALESCE(ic.image_count, 0) AS image_count
FROM students st
CROSS JOIN homeworks h
LEFT JOIN submissions s ON s.student_id = st.id AND s.homework_id = h.id
LEFT JOIN (SELECT submission_id, COUNT(*) AS image_count FROM submission_images GROUP BY submission_id) ic ON ic.submission_id = s.id
WHERE h.created_at >= $1 AND h.created_at < $2
ORDER BY st.student_no, h.subject, h.created_at`
	var cells []models.BoardCell
	if err := r.db.SelectContext(ctx, &cells, query, from, to); err != nil {
		return nil, fmt.Errorf("list board cells: %w", err)
	}
	return cells, nil
}

// RosterCells returns one row per (student, homework of teacherID). Students are kept with nil
// homework columns when the teacher has posted nothing.
func (r *SubmissionRepository) RosterCells(ctx context.Context, teacherID string) ([]models.RosterCell, error) {
	const query = `SELECT st.id AS student_id, st.name AS student_name, st.student_no,
h.id AS homework_id, h.title AS homework_title, h.subject AS homework_subject, h.max_images,
s.id AS submission_id, s.submitted_at, s.ai_review_status, s.ai_review_result,
COALESCE(ic.image_count, 0) AS image_count
FROM students st
LEFT JOIN homeworks h ON h.teacher_id = $1
LEFT JOIN submissions s ON s.student_id = st.id AND s.homework_id = h.id
LEFT JOIN (SELECT submission_id, COUNT(*) AS image_count FROM submission_images GROUP BY submission_id) ic ON ic.submission_id = s.id
ORDER BY st.student_no, h.created_at DESC`
	var cells []models.RosterCell
	if err := r.db.SelectContext(ctx, &cells, query, teacherID); err != nil {
		return nil, fmt.Errorf("list roster cells: %w", err)
	}
	return cells, nil
}

var errIllegalTransition = errors.New("illegal transition")

func statusStrings(statuses []models.ReviewStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
