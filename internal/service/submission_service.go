package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	"github.com/noah-isme/homework-review-api/internal/repository"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/jobs"
	"github.com/noah-isme/homework-review-api/pkg/storage"
)

// FileStore persists uploaded image files.
type FileStore interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

// RemoveFiles adapts a FileStore to the repository cascade callback.
func RemoveFiles(files FileStore) repository.FileRemover {
	if files == nil {
		return nil
	}
	return func(names []string) error {
		for _, name := range names {
			if err := files.Delete(name); err != nil {
				return err
			}
		}
		return nil
	}
}

type submissionStore interface {
	GetOrCreate(ctx context.Context, studentID, homeworkID string) (*models.Submission, bool, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Transition(ctx context.Context, id string, update models.StatusUpdate) (bool, error)
}

type imageStore interface {
	CreateWithLimit(ctx context.Context, image *models.SubmissionImage, limit int) error
	ListBySubmission(ctx context.Context, submissionID string) ([]models.SubmissionImage, error)
	CountBySubmission(ctx context.Context, submissionID string) (int, error)
	FindByID(ctx context.Context, id string) (*models.SubmissionImage, error)
	Delete(ctx context.Context, id string, remove repository.FileRemover) error
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type homeworkTeacherFinder interface {
	FindByHomework(ctx context.Context, homeworkID string) (*models.Teacher, error)
}

type reviewEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SubmissionServiceConfig carries the feature switches that shape the submission flow.
type SubmissionServiceConfig struct {
	ImageUploadEnabled bool
	AIReviewEnabled    bool
	MaxImages          int
}

// SubmissionServiceParams groups constructor dependencies.
type SubmissionServiceParams struct {
	Submissions submissionStore
	Images      imageStore
	Homeworks   homeworkFinder
	Students    studentFinder
	Teachers    homeworkTeacherFinder
	Cascade     cascadeDeleter
	Files       FileStore
	Queue       reviewEnqueuer
	Cache       *CacheService
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      SubmissionServiceConfig
}

// SubmissionService drives the student submission flow and dispatches AI reviews.
type SubmissionService struct {
	submissions submissionStore
	images      imageStore
	homeworks   homeworkFinder
	students    studentFinder
	teachers    homeworkTeacherFinder
	cascade     cascadeDeleter
	files       FileStore
	queue       reviewEnqueuer
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         SubmissionServiceConfig
	now         func() time.Time
}

// NewSubmissionService constructs the orchestrator.
func NewSubmissionService(p SubmissionServiceParams) *SubmissionService {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: p.Submissions,
		images:      p.Images,
		homeworks:   p.Homeworks,
		students:    p.Students,
		teachers:    p.Teachers,
		cascade:     p.Cascade,
		files:       p.Files,
		queue:       p.Queue,
		cache:       p.Cache,
		metrics:     p.Metrics,
		validator:   validator.New(),
		logger:      logger,
		cfg:         p.Config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create returns the submission for (student, homework), creating it when absent.
func (s *SubmissionService) Create(ctx context.Context, req dto.CreateSubmissionRequest) (*dto.CreateSubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id and homework_id are required")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	homework, err := s.homeworks.FindByID(ctx, req.HomeworkID)
	if err != nil {
		return nil, notFoundOr(err, "homework not found", "failed to load homework")
	}

	submission, created, err := s.submissions.GetOrCreate(ctx, req.StudentID, req.HomeworkID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	if created {
		s.cache.InvalidateBoard(ctx)
	}

	return &dto.CreateSubmissionResponse{
		SubmissionID: submission.ID,
		Subject:      homework.Subject,
		MaxImages:    homework.ImageLimit(s.cfg.MaxImages),
		Existing:     !created,
	}, nil
}

// Get returns the submission for status polling.
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	return submission, nil
}

// UploadImage decodes, re-encodes and stores one image for a submission.
func (s *SubmissionService) UploadImage(ctx context.Context, submissionID string, req dto.UploadImageRequest) (*dto.ImageResponse, error) {
	if !s.cfg.ImageUploadEnabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "image upload is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image_data is required")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	homework, err := s.homeworks.FindByID(ctx, submission.HomeworkID)
	if err != nil {
		return nil, notFoundOr(err, "homework not found", "failed to load homework")
	}
	limit := homework.ImageLimit(s.cfg.MaxImages)

	raw, err := storage.DecodeBase64(req.ImageData)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image_data is not valid base64")
	}
	jpeg, err := storage.ToJPEG(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image_data is not a supported image")
	}

	now := s.now()
	filename := strings.ReplaceAll(uuid.NewString(), "-", "") + ".jpg"
	if _, err := s.files.Save(filename, jpeg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}

	image := &models.SubmissionImage{
		SubmissionID:     submissionID,
		Filename:         filename,
		OriginalFilename: fmt.Sprintf("camera_%s.jpg", now.Format("20060102_150405")),
		UploadedAt:       now,
	}
	if err := s.images.CreateWithLimit(ctx, image, limit); err != nil {
		if delErr := s.files.Delete(filename); delErr != nil {
			s.logger.Warn("failed to remove orphan upload", zap.String("filename", filename), zap.Error(delErr))
		}
		switch {
		case errors.Is(err, repository.ErrImageLimitReached):
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d images may be uploaded", limit))
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save image")
		}
	}

	s.cache.InvalidateBoard(ctx)
	resp := toImageResponse(*image)
	return &resp, nil
}

// ListImages returns the images of a submission.
func (s *SubmissionService) ListImages(ctx context.Context, submissionID string) ([]dto.ImageResponse, error) {
	if _, err := s.submissions.FindByID(ctx, submissionID); err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	images, err := s.images.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list images")
	}
	result := make([]dto.ImageResponse, 0, len(images))
	for _, img := range images {
		result = append(result, toImageResponse(img))
	}
	return result, nil
}

// DeleteImage removes one image row and its file. Images of a submission under review are frozen.
func (s *SubmissionService) DeleteImage(ctx context.Context, imageID string) error {
	if !s.cfg.ImageUploadEnabled {
		return appErrors.Clone(appErrors.ErrFeatureDisabled, "image upload is disabled")
	}
	image, err := s.images.FindByID(ctx, imageID)
	if err != nil {
		return notFoundOr(err, "image not found", "failed to load image")
	}
	submission, err := s.submissions.FindByID(ctx, image.SubmissionID)
	if err != nil {
		return notFoundOr(err, "submission not found", "failed to load submission")
	}
	if submission.ReviewStatus == models.ReviewReviewing {
		return appErrors.Clone(appErrors.ErrConflict, "images cannot change while AI review is in progress")
	}
	if err := s.images.Delete(ctx, imageID, RemoveFiles(s.files)); err != nil {
		return notFoundOr(err, "image not found", "failed to delete image")
	}
	s.cache.InvalidateBoard(ctx)
	return nil
}

// DeleteSubmission removes a submission with its images so the student can start over.
func (s *SubmissionService) DeleteSubmission(ctx context.Context, id string) error {
	if _, err := s.cascade.Delete(ctx, models.DeleteScope{SubmissionID: id}, RemoveFiles(s.files)); err != nil {
		return notFoundOr(err, "submission not found", "failed to delete submission")
	}
	s.cache.InvalidateBoard(ctx)
	return nil
}

// Finalize confirms a submission and, when AI review applies, moves it to reviewing and queues the review.
func (s *SubmissionService) Finalize(ctx context.Context, id string) (*dto.FinalizeResult, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}

	if s.cfg.ImageUploadEnabled {
		count, err := s.images.CountBySubmission(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count images")
		}
		if count == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "upload at least one image before submitting")
		}
	}

	homework, err := s.homeworks.FindByID(ctx, submission.HomeworkID)
	if err != nil {
		return nil, notFoundOr(err, "homework not found", "failed to load homework")
	}
	teacher, err := s.teachers.FindByHomework(ctx, submission.HomeworkID)
	if err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to load teacher")
	}

	aiEnabled := s.cfg.AIReviewEnabled && teacher.EnableAIReview && s.cfg.ImageUploadEnabled
	result := &dto.FinalizeResult{
		SubmissionID:    submission.ID,
		Subject:         homework.Subject,
		SubmittedAt:     submission.SubmittedAt,
		AIReviewEnabled: aiEnabled,
		Status:          submission.ReviewStatus,
		Message:         fmt.Sprintf("%s homework submitted", homework.Subject),
	}
	if !aiEnabled {
		s.cache.InvalidateBoard(ctx)
		return result, nil
	}

	changed, err := s.submissions.Transition(ctx, id, models.StatusUpdate{
		To:         models.ReviewReviewing,
		Trigger:    models.TriggerDispatch,
		Diagnostic: models.DiagnosticInProgress,
		At:         s.now(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start review")
	}
	if !changed {
		current, err := s.submissions.FindByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "submission not found", "failed to load submission")
		}
		result.Status = current.ReviewStatus
		switch {
		case current.ReviewStatus == models.ReviewReviewing:
			result.AlreadyReviewing = true
			result.Message = "AI review already in progress"
		case current.ReviewStatus.IsTerminal():
			result.Message = fmt.Sprintf("submission already reviewed: %s", current.ReviewStatus)
		default:
			result.Message = "AI review not started, finalize again"
		}
		return result, nil
	}

	if err := s.dispatch(ctx, id); err != nil {
		return nil, err
	}
	result.Status = models.ReviewReviewing
	result.Message = fmt.Sprintf("%s homework submitted, AI review in progress", homework.Subject)
	return result, nil
}

// Retry re-runs the review of a rejected or failed submission. An empty teacherID skips the ownership check.
func (s *SubmissionService) Retry(ctx context.Context, teacherID, id string) (*dto.FinalizeResult, error) {
	if !s.cfg.AIReviewEnabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "AI review is disabled")
	}
	submission, err := s.ownedSubmission(ctx, teacherID, id)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateTransition(submission.ReviewStatus, models.ReviewReviewing, models.TriggerRetry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("cannot retry review while submission is %s", submission.ReviewStatus))
	}

	changed, err := s.submissions.Transition(ctx, id, models.StatusUpdate{
		To:         models.ReviewReviewing,
		Trigger:    models.TriggerRetry,
		Diagnostic: models.DiagnosticInProgress,
		At:         s.now(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restart review")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission status changed, retry not applicable")
	}
	if err := s.dispatch(ctx, id); err != nil {
		return nil, err
	}

	return &dto.FinalizeResult{
		SubmissionID:    submission.ID,
		SubmittedAt:     submission.SubmittedAt,
		AIReviewEnabled: true,
		Status:          models.ReviewReviewing,
		Message:         "AI review restarted",
	}, nil
}

// Override applies a teacher decision to a submission. An empty teacherID skips the ownership check.
func (s *SubmissionService) Override(ctx context.Context, teacherID, id string, req dto.OverrideRequest) (*dto.OverrideResult, error) {
	if !req.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown override action %q", req.Action))
	}
	if _, err := s.ownedSubmission(ctx, teacherID, id); err != nil {
		return nil, err
	}

	result := &dto.OverrideResult{SubmissionID: id, Action: req.Action}
	switch req.Action {
	case models.OverrideApprove:
		changed, err := s.submissions.Transition(ctx, id, models.StatusUpdate{
			To:         models.ReviewApproved,
			Trigger:    models.TriggerOverride,
			Diagnostic: models.DiagnosticTeacherApprove,
			At:         s.now(),
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve submission")
		}
		if !changed {
			current, err := s.submissions.FindByID(ctx, id)
			if err != nil {
				return nil, notFoundOr(err, "submission not found", "failed to load submission")
			}
			return nil, appErrors.Wrap(models.ValidateTransition(current.ReviewStatus, models.ReviewApproved, models.TriggerOverride),
				appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status,
				fmt.Sprintf("submission is already %s", current.ReviewStatus))
		}
		status := models.ReviewApproved
		result.Status = &status
	case models.OverrideRejectAndDelete:
		if _, err := s.cascade.Delete(ctx, models.DeleteScope{SubmissionID: id}, RemoveFiles(s.files)); err != nil {
			return nil, notFoundOr(err, "submission not found", "failed to delete submission")
		}
		result.Deleted = true
	}

	s.cache.InvalidateBoard(ctx)
	s.logger.Info("submission overridden", zap.String("submission_id", id), zap.String("action", string(req.Action)), zap.String("teacher_id", teacherID))
	return result, nil
}

func (s *SubmissionService) ownedSubmission(ctx context.Context, teacherID, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	if teacherID == "" {
		return submission, nil
	}
	homework, err := s.homeworks.FindByID(ctx, submission.HomeworkID)
	if err != nil {
		return nil, notFoundOr(err, "homework not found", "failed to load homework")
	}
	if homework.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another teacher")
	}
	return submission, nil
}

// dispatch queues the review; a rejected job leaves the submission in error instead of stuck reviewing.
func (s *SubmissionService) dispatch(ctx context.Context, id string) error {
	s.cache.InvalidateBoard(ctx)
	err := s.queue.Enqueue(jobs.Job{ID: id, Type: ReviewJobType})
	s.metrics.RecordEnqueue(err == nil)
	if err == nil {
		return nil
	}

	s.logger.Error("review queue rejected job", zap.String("submission_id", id), zap.Error(err))
	if _, txErr := s.submissions.Transition(ctx, id, models.StatusUpdate{
		To:         models.ReviewError,
		Trigger:    models.TriggerFailure,
		Diagnostic: models.DiagnosticQueueFull,
		At:         s.now(),
	}); txErr != nil {
		s.logger.Error("failed to mark undispatched review", zap.String("submission_id", id), zap.Error(txErr))
	}
	return appErrors.Wrap(err, appErrors.ErrQueueUnavailable.Code, appErrors.ErrQueueUnavailable.Status, "review queue is full, try again later")
}

func toImageResponse(img models.SubmissionImage) dto.ImageResponse {
	return dto.ImageResponse{
		ID:               img.ID,
		Filename:         img.Filename,
		OriginalFilename: img.OriginalFilename,
		UploadedAt:       img.UploadedAt,
		URL:              "/uploads/" + img.Filename,
	}
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
