package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/response"
)

type homeworkService interface {
	Create(ctx context.Context, teacherID string, req dto.CreateHomeworkRequest) (*models.Homework, error)
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkSummary, *models.Pagination, error)
	Delete(ctx context.Context, teacherID, id string) error
	Submissions(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error)
	AbnormalSubmissions(ctx context.Context, teacherID string, page, pageSize int) ([]models.SubmissionDetail, *models.Pagination, error)
	ResetSubmissions(ctx context.Context, teacherID string) (*dto.ResetSubmissionsResult, error)
	RosterStatus(ctx context.Context, teacherID string) ([]models.RosterStudent, error)
	UnsubmittedStudents(ctx context.Context, teacherID string) ([]models.RosterStudent, error)
	HomeworkDates(ctx context.Context, teacherID string) ([]string, error)
}

type reviewService interface {
	Retry(ctx context.Context, teacherID, id string) (*dto.FinalizeResult, error)
	Override(ctx context.Context, teacherID, id string, req dto.OverrideRequest) (*dto.OverrideResult, error)
}

// HomeworkHandler serves homework management and the review dashboard for teachers and admins.
// Teacher callers are restricted to their own homework; admins see everything.
type HomeworkHandler struct {
	homeworks homeworkService
	reviews   reviewService
}

// NewHomeworkHandler constructs the handler.
func NewHomeworkHandler(homeworks homeworkService, reviews reviewService) *HomeworkHandler {
	return &HomeworkHandler{homeworks: homeworks, reviews: reviews}
}

// scopeTeacher returns the teacher id that narrows the request, or "" for admins.
func scopeTeacher(claims *models.JWTClaims) string {
	if claims.Role == models.RoleTeacher {
		return claims.UserID
	}
	return ""
}

// Create godoc
// @Summary Post homework
// @Tags Teacher
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateHomeworkRequest true "Homework payload"
// @Success 201 {object} response.Envelope
// @Router /teacher/homeworks [post]
func (h *HomeworkHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid homework payload"))
		return
	}
	homework, err := h.homeworks.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, homework)
}

// List godoc
// @Summary List homework with submission counts
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher/homeworks [get]
// @Router /admin/homeworks [get]
func (h *HomeworkHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.homeworks.List(c.Request.Context(), models.HomeworkFilter{
		TeacherID: scopeTeacher(claims),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Delete godoc
// @Summary Delete homework with its submissions and images
// @Tags Teacher
// @Security BearerAuth
// @Param id path string true "Homework ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /teacher/homeworks/{id} [delete]
// @Router /admin/homeworks/{id} [delete]
func (h *HomeworkHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.homeworks.Delete(c.Request.Context(), scopeTeacher(claims), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submissions godoc
// @Summary List submissions of own homework
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Param homework_id query string false "Homework ID"
// @Param status query string false "Review status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher/submissions [get]
func (h *HomeworkHandler) Submissions(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	filter := models.SubmissionFilter{
		TeacherID:  scopeTeacher(claims),
		HomeworkID: c.Query("homework_id"),
		Page:       page,
		PageSize:   size,
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ReviewStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown review status"))
			return
		}
		filter.Statuses = []models.ReviewStatus{status}
	}
	items, pagination, err := h.homeworks.Submissions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Abnormal godoc
// @Summary Submissions that need attention
// @Description Own submissions whose review is in progress, rejected or failed
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher/abnormal-submissions [get]
func (h *HomeworkHandler) Abnormal(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.homeworks.AbnormalSubmissions(c.Request.Context(), scopeTeacher(claims), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ResetSubmissions godoc
// @Summary Clear every submission of own homework
// @Description Removes submissions, images and files; the homework stays posted
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /teacher/submissions/reset [post]
func (h *HomeworkHandler) ResetSubmissions(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.homeworks.ResetSubmissions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StudentsStatus godoc
// @Summary Every student's progress on own homework
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /teacher/students-status [get]
func (h *HomeworkHandler) StudentsStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	roster, err := h.homeworks.RosterStatus(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// UnsubmittedStudents godoc
// @Summary Students missing at least one own homework
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /teacher/unsubmitted-students [get]
func (h *HomeworkHandler) UnsubmittedStudents(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	students, err := h.homeworks.UnsubmittedStudents(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// HomeworkDates godoc
// @Summary Days with own homework, newest first
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /teacher/homework-dates [get]
func (h *HomeworkHandler) HomeworkDates(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	dates, err := h.homeworks.HomeworkDates(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}

// Retry godoc
// @Summary Re-run the AI review
// @Tags Teacher
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /teacher/submissions/{id}/retry [post]
func (h *HomeworkHandler) Retry(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.reviews.Retry(c.Request.Context(), scopeTeacher(claims), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// Override godoc
// @Summary Approve or delete a submission regardless of the AI verdict
// @Tags Teacher
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.OverrideRequest true "Override action"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/submissions/{id}/override [post]
func (h *HomeworkHandler) Override(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	result, err := h.reviews.Override(c.Request.Context(), scopeTeacher(claims), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
