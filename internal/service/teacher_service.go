package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context) ([]models.TeacherSummary, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ExistsByUsername(ctx context.Context, username, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	ToggleAIReview(ctx context.Context, id string) (bool, error)
}

// TeacherService orchestrates teacher account management.
type TeacherService struct {
	repo      teacherRepository
	cascade   cascadeDeleter
	files     FileStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, cascade cascadeDeleter, files FileStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, cascade: cascade, files: files, cache: cache, validator: validate, logger: logger}
}

// List returns every teacher with homework counts.
func (s *TeacherService) List(ctx context.Context) ([]models.TeacherSummary, error) {
	teachers, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher account.
func (s *TeacherService) Create(ctx context.Context, req dto.CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	username := strings.TrimSpace(req.Username)
	if err := s.ensureUniqueUsername(ctx, username, ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	teacher := &models.Teacher{
		Username:       username,
		PasswordHash:   string(hash),
		Subject:        strings.TrimSpace(req.Subject),
		EnableAIReview: true,
	}
	if req.EnableAIReview != nil {
		teacher.EnableAIReview = *req.EnableAIReview
	}

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID), zap.String("username", teacher.Username))
	return teacher, nil
}

// Update modifies an existing teacher. An empty password keeps the current hash.
func (s *TeacherService) Update(ctx context.Context, id string, req dto.UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to load teacher")
	}

	username := strings.TrimSpace(req.Username)
	if err := s.ensureUniqueUsername(ctx, username, id); err != nil {
		return nil, err
	}

	teacher.Username = username
	teacher.Subject = strings.TrimSpace(req.Subject)
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		teacher.PasswordHash = string(hash)
	}
	if req.EnableAIReview != nil {
		teacher.EnableAIReview = *req.EnableAIReview
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to update teacher")
	}
	return teacher, nil
}

// Delete removes a teacher with their homework, submissions and uploaded files.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	result, err := s.cascade.Delete(ctx, models.DeleteScope{TeacherID: id}, RemoveFiles(s.files))
	if err != nil {
		return notFoundOr(err, "teacher not found", "failed to delete teacher")
	}
	s.cache.InvalidateBoard(ctx)
	s.logger.Info("teacher deleted", zap.String("teacher_id", id), zap.Int64("submissions", result.Submissions), zap.Int("files", len(result.Files)))
	return nil
}

// ToggleAIReview flips the teacher's personal AI review switch.
func (s *TeacherService) ToggleAIReview(ctx context.Context, id string) (*dto.ToggleAIReviewResponse, error) {
	enabled, err := s.repo.ToggleAIReview(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to toggle AI review")
	}
	return &dto.ToggleAIReviewResponse{EnableAIReview: enabled}, nil
}

func (s *TeacherService) ensureUniqueUsername(ctx context.Context, username, excludeID string) error {
	exists, err := s.repo.ExistsByUsername(ctx, username, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate username")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "username already exists")
	}
	return nil
}
