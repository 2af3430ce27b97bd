package models

import "time"

// Teacher posts homework and owns a per-teacher AI review switch.
type Teacher struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Subject        string    `db:"subject" json:"subject"`
	EnableAIReview bool      `db:"enable_ai_review" json:"enable_ai_review"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherSummary adds the homework count shown to admins.
type TeacherSummary struct {
	Teacher
	HomeworkCount int `db:"homework_count" json:"homework_count"`
}
