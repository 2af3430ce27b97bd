package models

import "time"

// BoardHomework is one homework cell on the student board.
type BoardHomework struct {
	HomeworkID   string        `json:"homework_id"`
	Title        string        `json:"title"`
	Subject      string        `json:"subject,omitempty"`
	MaxImages    int           `json:"max_images"`
	Submitted    bool          `json:"submitted"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	SubmissionID *string       `json:"submission_id,omitempty"`
	ImageCount   int           `json:"image_count"`
	ReviewStatus *ReviewStatus `json:"ai_review_status,omitempty"`
	ReviewResult *string       `json:"ai_review_result,omitempty"`
}

// BoardStudent is one row of the student board with homework grouped by subject.
type BoardStudent struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	StudentNo string                     `json:"student_no"`
	Homework  map[string][]BoardHomework `json:"homework_status"`
}

// BoardCell is the flat row used to assemble the board.
type BoardCell struct {
	StudentID    string        `db:"student_id"`
	HomeworkID   string        `db:"homework_id"`
	SubmissionID *string       `db:"submission_id"`
	SubmittedAt  *time.Time    `db:"submitted_at"`
	ReviewStatus *ReviewStatus `db:"ai_review_status"`
	ReviewResult *string       `db:"ai_review_result"`
	ImageCount   int           `db:"image_count"`
}

// RosterStudent is one student's progress across a teacher's homework.
type RosterStudent struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StudentNo      string          `json:"student_no"`
	Homework       []BoardHomework `json:"homework_details"`
	SubmittedCount int             `json:"submitted_count"`
	TotalHomework  int             `json:"total_homework"`
}

// RosterCell is the flat row used to assemble the roster. Homework columns are nil for a
// teacher without homework.
type RosterCell struct {
	StudentID       string        `db:"student_id"`
	StudentName     string        `db:"student_name"`
	StudentNo       string        `db:"student_no"`
	HomeworkID      *string       `db:"homework_id"`
	HomeworkTitle   *string       `db:"homework_title"`
	HomeworkSubject *string       `db:"homework_subject"`
	MaxImages       *int          `db:"max_images"`
	SubmissionID    *string       `db:"submission_id"`
	SubmittedAt     *time.Time    `db:"submitted_at"`
	ReviewStatus    *ReviewStatus `db:"ai_review_status"`
	ReviewResult    *string       `db:"ai_review_result"`
	ImageCount      int           `db:"image_count"`
}
