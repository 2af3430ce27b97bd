package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/middleware"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/response"
)

type submissionService interface {
	Create(ctx context.Context, req dto.CreateSubmissionRequest) (*dto.CreateSubmissionResponse, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	UploadImage(ctx context.Context, submissionID string, req dto.UploadImageRequest) (*dto.ImageResponse, error)
	ListImages(ctx context.Context, submissionID string) ([]dto.ImageResponse, error)
	DeleteImage(ctx context.Context, imageID string) error
	DeleteSubmission(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string) (*dto.FinalizeResult, error)
}

type boardService interface {
	Today(ctx context.Context) ([]models.BoardStudent, bool, error)
}

// SubmissionHandler serves the unauthenticated student flow.
type SubmissionHandler struct {
	submissions submissionService
	board       boardService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionService, board boardService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, board: board}
}

// Board godoc
// @Summary Today's homework board
// @Description Every student with the homework posted today, grouped by subject
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /board [get]
func (h *SubmissionHandler) Board(c *gin.Context) {
	board, cacheHit, err := h.board.Today(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Start or resume a submission
// @Tags Student
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionRequest true "Student and homework"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	res, err := h.submissions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Existing {
		response.JSON(c, http.StatusOK, res, nil)
		return
	}
	response.Created(c, res)
}

// Get godoc
// @Summary Submission status
// @Tags Student
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// UploadImage godoc
// @Summary Upload one image
// @Description Accepts a base64 image or data URL; the image is stored as JPEG
// @Tags Student
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.UploadImageRequest true "Image payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /submissions/{id}/images [post]
func (h *SubmissionHandler) UploadImage(c *gin.Context) {
	var req dto.UploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid image payload"))
		return
	}
	image, err := h.submissions.UploadImage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, image)
}

// ListImages godoc
// @Summary List submission images
// @Tags Student
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/images [get]
func (h *SubmissionHandler) ListImages(c *gin.Context) {
	images, err := h.submissions.ListImages(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, images, nil)
}

// DeleteImage godoc
// @Summary Delete an uploaded image
// @Tags Student
// @Param id path string true "Image ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /images/{id} [delete]
func (h *SubmissionHandler) DeleteImage(c *gin.Context) {
	if err := h.submissions.DeleteImage(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Finalize godoc
// @Summary Submit homework
// @Description Confirms the submission and queues the AI review when enabled
// @Tags Student
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /submissions/{id}/finalize [post]
func (h *SubmissionHandler) Finalize(c *gin.Context) {
	result, err := h.submissions.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AIReviewEnabled && result.Status == models.ReviewReviewing && !result.AlreadyReviewing {
		response.Accepted(c, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Discard a submission
// @Tags Student
// @Param id path string true "Submission ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	if err := h.submissions.DeleteSubmission(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// bindError maps body read failures past the size limit to 413.
func bindError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return appErrors.Clone(appErrors.ErrPayloadTooLarge, "")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
