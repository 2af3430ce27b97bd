package models

import "time"

// DefaultMaxImages applies when neither the homework nor the config sets a cap.
const DefaultMaxImages = 5

// Homework is an assignment posted by a teacher.
type Homework struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Subject   string    `db:"subject" json:"subject"`
	Title     string    `db:"title" json:"title"`
	AIPrompt  *string   `db:"ai_prompt" json:"ai_prompt,omitempty"`
	MaxImages int       `db:"max_images" json:"max_images"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ImageLimit returns the homework cap, falling back to fallback and then DefaultMaxImages.
func (h Homework) ImageLimit(fallback int) int {
	if h.MaxImages > 0 {
		return h.MaxImages
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxImages
}

// HomeworkSummary adds submission counters to a homework row.
type HomeworkSummary struct {
	Homework
	TeacherName    string `db:"teacher_name" json:"teacher_name"`
	TotalStudents  int    `db:"total_students" json:"total_students"`
	SubmittedCount int    `db:"submitted_count" json:"submitted_count"`
}

// HomeworkFilter narrows homework listings.
type HomeworkFilter struct {
	TeacherID     string
	CreatedFrom   *time.Time
	CreatedBefore *time.Time
	Page          int
	PageSize      int
}
