package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByNo(ctx context.Context, studentNo, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

// StudentService manages the student roster.
type StudentService struct {
	repo      studentRepository
	cascade   cascadeDeleter
	files     FileStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, cascade cascadeDeleter, files FileStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cascade: cascade, files: files, cache: cache, validator: validate, logger: logger}
}

// List returns students plus pagination data.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentSummary, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page, size := pageOrDefault(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	return student, nil
}

// Create adds a student to the roster.
func (s *StudentService) Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	studentNo := strings.TrimSpace(req.StudentNo)
	if err := s.ensureUniqueNo(ctx, studentNo, ""); err != nil {
		return nil, err
	}

	student := &models.Student{StudentNo: studentNo, Name: strings.TrimSpace(req.Name)}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.cache.InvalidateBoard(ctx)
	return student, nil
}

// Update renames or renumbers a student.
func (s *StudentService) Update(ctx context.Context, id string, req dto.StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}

	studentNo := strings.TrimSpace(req.StudentNo)
	if err := s.ensureUniqueNo(ctx, studentNo, id); err != nil {
		return nil, err
	}
	student.StudentNo = studentNo
	student.Name = strings.TrimSpace(req.Name)

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, notFoundOr(err, "student not found", "failed to update student")
	}
	s.cache.InvalidateBoard(ctx)
	return student, nil
}

// Delete removes a student together with their submissions and image files.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	result, err := s.cascade.Delete(ctx, models.DeleteScope{StudentID: id}, RemoveFiles(s.files))
	if err != nil {
		return notFoundOr(err, "student not found", "failed to delete student")
	}
	s.cache.InvalidateBoard(ctx)
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Int64("submissions", result.Submissions))
	return nil
}

func (s *StudentService) ensureUniqueNo(ctx context.Context, studentNo, excludeID string) error {
	exists, err := s.repo.ExistsByNo(ctx, studentNo, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student number")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student number already exists")
	}
	return nil
}
