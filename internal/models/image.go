package models

import "time"

// SubmissionImage is an uploaded photo owned by a submission.
type SubmissionImage struct {
	ID               string    `db:"id" json:"id"`
	SubmissionID     string    `db:"submission_id" json:"submission_id"`
	Filename         string    `db:"filename" json:"filename"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
}
