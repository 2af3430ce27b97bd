package dto

import (
	"time"

	"github.com/noah-isme/homework-review-api/internal/models"
)

// CreateSubmissionRequest captures POST /submissions payload.
type CreateSubmissionRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	HomeworkID string `json:"homework_id" validate:"required"`
}

// CreateSubmissionResponse returns the (possibly existing) submission for the pair.
type CreateSubmissionResponse struct {
	SubmissionID string `json:"submission_id"`
	Subject      string `json:"subject"`
	MaxImages    int    `json:"max_images"`
	Existing     bool   `json:"existing"`
}

// UploadImageRequest captures POST /submissions/:id/images payload.
type UploadImageRequest struct {
	ImageData string `json:"image_data" validate:"required"`
}

// ImageResponse describes an uploaded image.
type ImageResponse struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	UploadedAt       time.Time `json:"uploaded_at"`
	URL              string    `json:"url"`
}

// FinalizeResult acknowledges a finalize or retry call.
type FinalizeResult struct {
	SubmissionID     string              `json:"submission_id"`
	Subject          string              `json:"subject,omitempty"`
	SubmittedAt      time.Time           `json:"submitted_at"`
	AIReviewEnabled  bool                `json:"ai_review_enabled"`
	AlreadyReviewing bool                `json:"already_reviewing"`
	Status           models.ReviewStatus `json:"ai_review_status"`
	Message          string              `json:"message"`
}

// OverrideRequest captures POST /teacher/submissions/:id/override payload.
type OverrideRequest struct {
	Action models.OverrideAction `json:"action" validate:"required"`
}

// OverrideResult reports the outcome of a teacher override.
type OverrideResult struct {
	SubmissionID string                `json:"submission_id"`
	Action       models.OverrideAction `json:"action"`
	Deleted      bool                  `json:"deleted"`
	Status       *models.ReviewStatus  `json:"ai_review_status,omitempty"`
}
