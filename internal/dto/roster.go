package dto

// CreateHomeworkRequest captures POST /teacher/homeworks payload.
type CreateHomeworkRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	AIPrompt  *string `json:"ai_prompt"`
	MaxImages *int    `json:"max_images" validate:"omitempty,min=1,max=20"`
}

// ResetSubmissionsResult reports how many submissions a reset cleared.
type ResetSubmissionsResult struct {
	Deleted int64 `json:"deleted"`
}

// CreateTeacherRequest captures POST /admin/teachers payload.
type CreateTeacherRequest struct {
	Username       string `json:"username" validate:"required,max=80"`
	Password       string `json:"password" validate:"required,min=6"`
	Subject        string `json:"subject" validate:"required,max=50"`
	EnableAIReview *bool  `json:"enable_ai_review"`
}

// UpdateTeacherRequest captures PUT /admin/teachers/:id payload. An empty password keeps the current one.
type UpdateTeacherRequest struct {
	Username       string `json:"username" validate:"required,max=80"`
	Password       string `json:"password" validate:"omitempty,min=6"`
	Subject        string `json:"subject" validate:"required,max=50"`
	EnableAIReview *bool  `json:"enable_ai_review"`
}

// StudentRequest captures student create and update payloads.
type StudentRequest struct {
	Name      string `json:"name" validate:"required,max=80"`
	StudentNo string `json:"student_no" validate:"required,max=50"`
}

// ToggleAIReviewResponse reports the new per-teacher switch value.
type ToggleAIReviewResponse struct {
	EnableAIReview bool `json:"enable_ai_review"`
}

// PublicConfig exposes feature flags to the student front-end.
type PublicConfig struct {
	EnableImageUpload    bool     `json:"enable_image_upload"`
	MaxImagesPerHomework int      `json:"max_images_per_homework"`
	AllowedImageFormats  []string `json:"allowed_image_formats"`
	MaxImageSizeMB       int      `json:"max_image_size_mb"`
	EnableAIReview       bool     `json:"enable_ai_review"`
	AIReviewAction       string   `json:"ai_review_action"`
}
