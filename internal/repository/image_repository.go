package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/homework-review-api/internal/models"
)

// ErrImageLimitReached is returned when a submission already holds its maximum number of images.
var ErrImageLimitReached = errors.New("image limit reached")

// ImageRepository persists submission images.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository constructs an ImageRepository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// CreateWithLimit inserts image unless the submission already owns limit images.
// The submission row is locked so concurrent uploads cannot overshoot the cap.
func (r *ImageRepository) CreateWithLimit(ctx context.Context, image *models.SubmissionImage, limit int) (err error) {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.UploadedAt.IsZero() {
		image.UploadedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin image insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM submissions WHERE id = $1 FOR UPDATE`, image.SubmissionID); err != nil {
		return err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM submission_images WHERE submission_id = $1`, image.SubmissionID); err != nil {
		return fmt.Errorf("count images: %w", err)
	}
	if count >= limit {
		err = ErrImageLimitReached
		return err
	}

	const query = `INSERT INTO submission_images (id, submission_id, filename, original_filename, uploaded_at)
VALUES (:id, :submission_id, :filename, :original_filename, :uploaded_at)`
	if _, err = tx.NamedExecContext(ctx, query, image); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit image insert: %w", err)
	}
	return nil
}

// ListBySubmission returns images ordered by upload time.
func (r *ImageRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.SubmissionImage, error) {
	const query = `SELECT id, submission_id, filename, original_filename, uploaded_at
FROM submission_images WHERE submission_id = $1 ORDER BY uploaded_at ASC`
	var images []models.SubmissionImage
	if err := r.db.SelectContext(ctx, &images, query, submissionID); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// CountBySubmission returns the number of images a submission owns.
func (r *ImageRepository) CountBySubmission(ctx context.Context, submissionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM submission_images WHERE submission_id = $1`, submissionID); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

// FindByID fetches an image by ID.
func (r *ImageRepository) FindByID(ctx context.Context, id string) (*models.SubmissionImage, error) {
	const query = `SELECT id, submission_id, filename, original_filename, uploaded_at FROM submission_images WHERE id = $1`
	var image models.SubmissionImage
	if err := r.db.GetContext(ctx, &image, query, id); err != nil {
		return nil, err
	}
	return &image, nil
}

// Delete removes the image row and calls remove with its filename before committing.
func (r *ImageRepository) Delete(ctx context.Context, id string, remove FileRemover) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin image delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var filename string
	if err = tx.GetContext(ctx, &filename, `DELETE FROM submission_images WHERE id = $1 RETURNING filename`, id); err != nil {
		return err
	}
	if remove != nil {
		if err = remove([]string{filename}); err != nil {
			return fmt.Errorf("remove image file: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit image delete: %w", err)
	}
	return nil
}
