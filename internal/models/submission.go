package models

import "time"

// Submission is one student's attempt at one homework item.
type Submission struct {
	ID              string       `db:"id" json:"id"`
	StudentID       string       `db:"student_id" json:"student_id"`
	HomeworkID      string       `db:"homework_id" json:"homework_id"`
	SubmittedAt     time.Time    `db:"submitted_at" json:"submitted_at"`
	ReviewStatus    ReviewStatus `db:"ai_review_status" json:"ai_review_status"`
	ReviewResult    *string      `db:"ai_review_result" json:"ai_review_result,omitempty"`
	ReviewedAt      *time.Time   `db:"ai_reviewed_at" json:"ai_reviewed_at,omitempty"`
	ReviewStartedAt *time.Time   `db:"review_started_at" json:"review_started_at,omitempty"`
}

// SubmissionDetail joins a submission with the names shown to teachers.
type SubmissionDetail struct {
	Submission
	StudentName     string `db:"student_name" json:"student_name"`
	StudentNo       string `db:"student_no" json:"student_no"`
	HomeworkTitle   string `db:"homework_title" json:"homework_title"`
	HomeworkSubject string `db:"homework_subject" json:"homework_subject"`
	ImageCount      int    `db:"image_count" json:"image_count"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	TeacherID  string
	HomeworkID string
	StudentID  string
	Statuses   []ReviewStatus
	Page       int
	PageSize   int
}

// StatusUpdate describes a conditional review status write.
type StatusUpdate struct {
	To         ReviewStatus
	Trigger    ReviewTrigger
	Diagnostic string
	At         time.Time
}

// DeleteScope selects which submissions a cascade delete removes. Exactly one field is set.
type DeleteScope struct {
	SubmissionID string
	HomeworkID   string
	TeacherID    string
	StudentID    string
	// SubmissionsOfTeacherID clears the submissions of a teacher's homework and keeps the homework.
	SubmissionsOfTeacherID string
}
