package models

import "time"

// Student is a roster entry identified by a school number.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentNo string    `db:"student_no" json:"student_no"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentSummary adds the submission count shown to admins.
type StudentSummary struct {
	Student
	SubmissionCount int `db:"submission_count" json:"submission_count"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Page     int
	PageSize int
}
