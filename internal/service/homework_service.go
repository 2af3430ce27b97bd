package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

// AbnormalStatuses are the review states a teacher must look at.
var AbnormalStatuses = []models.ReviewStatus{models.ReviewReviewing, models.ReviewRejected, models.ReviewError}

type homeworkRepository interface {
	Create(ctx context.Context, homework *models.Homework) error
	FindByID(ctx context.Context, id string) (*models.Homework, error)
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkSummary, int, error)
	CreatedDates(ctx context.Context, teacherID string, loc *time.Location) ([]string, error)
}

type teacherFinder interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type submissionDetailLister interface {
	ListDetails(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	RosterCells(ctx context.Context, teacherID string) ([]models.RosterCell, error)
}

// HomeworkService manages homework items and teacher submission views.
type HomeworkService struct {
	repo        homeworkRepository
	teachers    teacherFinder
	submissions submissionDetailLister
	cascade     cascadeDeleter
	files       FileStore
	cache       *CacheService
	location    *time.Location
	validator   *validator.Validate
	logger      *zap.Logger
}

// HomeworkServiceParams groups constructor dependencies.
type HomeworkServiceParams struct {
	Repo        homeworkRepository
	Teachers    teacherFinder
	Submissions submissionDetailLister
	Cascade     cascadeDeleter
	Files       FileStore
	Cache       *CacheService
	Location    *time.Location
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewHomeworkService constructs a HomeworkService.
func NewHomeworkService(p HomeworkServiceParams) *HomeworkService {
	validate := p.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return &HomeworkService{
		repo:        p.Repo,
		teachers:    p.Teachers,
		submissions: p.Submissions,
		cascade:     p.Cascade,
		files:       p.Files,
		cache:       p.Cache,
		location:    loc,
		validator:   validate,
		logger:      logger,
	}
}

// Create posts a homework item under the teacher's subject.
func (s *HomeworkService) Create(ctx context.Context, teacherID string, req dto.CreateHomeworkRequest) (*models.Homework, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return nil, notFoundOr(err, "teacher not found", "failed to load teacher")
	}

	homework := &models.Homework{
		TeacherID: teacher.ID,
		Subject:   teacher.Subject,
		Title:     strings.TrimSpace(req.Title),
		MaxImages: models.DefaultMaxImages,
	}
	if req.AIPrompt != nil {
		if prompt := strings.TrimSpace(*req.AIPrompt); prompt != "" {
			homework.AIPrompt = &prompt
		}
	}
	if req.MaxImages != nil {
		homework.MaxImages = *req.MaxImages
	}

	if err := s.repo.Create(ctx, homework); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create homework")
	}
	s.cache.InvalidateBoard(ctx)
	s.logger.Info("homework created", zap.String("homework_id", homework.ID), zap.String("teacher_id", teacher.ID))
	return homework, nil
}

// List returns homework with submission counters. An empty TeacherID lists everything.
func (s *HomeworkService) List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkSummary, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list homework")
	}
	page, size := pageOrDefault(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes a homework with its submissions and files. A non-empty teacherID restricts deletion to own homework.
func (s *HomeworkService) Delete(ctx context.Context, teacherID, id string) error {
	if teacherID != "" {
		homework, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "homework not found", "failed to load homework")
		}
		if homework.TeacherID != teacherID {
			return appErrors.Clone(appErrors.ErrForbidden, "homework belongs to another teacher")
		}
	}

	result, err := s.cascade.Delete(ctx, models.DeleteScope{HomeworkID: id}, RemoveFiles(s.files))
	if err != nil {
		return notFoundOr(err, "homework not found", "failed to delete homework")
	}
	s.cache.InvalidateBoard(ctx)
	s.logger.Info("homework deleted", zap.String("homework_id", id), zap.Int64("submissions", result.Submissions), zap.Int("files", len(result.Files)))
	return nil
}

// Submissions lists submissions of the teacher's homework, optionally narrowed to one homework.
func (s *HomeworkService) Submissions(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	items, total, err := s.submissions.ListDetails(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	page, size := pageOrDefault(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AbnormalSubmissions lists the teacher's submissions that are reviewing, rejected or errored.
func (s *HomeworkService) AbnormalSubmissions(ctx context.Context, teacherID string, page, pageSize int) ([]models.SubmissionDetail, *models.Pagination, error) {
	return s.Submissions(ctx, models.SubmissionFilter{
		TeacherID: teacherID,
		Statuses:  AbnormalStatuses,
		Page:      page,
		PageSize:  pageSize,
	})
}

// ResetSubmissions clears every submission of the teacher's homework, keeping the homework itself.
func (s *HomeworkService) ResetSubmissions(ctx context.Context, teacherID string) (*dto.ResetSubmissionsResult, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	result, err := s.cascade.Delete(ctx, models.DeleteScope{SubmissionsOfTeacherID: teacherID}, RemoveFiles(s.files))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset submissions")
	}
	s.cache.InvalidateBoard(ctx)
	s.logger.Info("submissions reset", zap.String("teacher_id", teacherID), zap.Int64("submissions", result.Submissions), zap.Int("files", len(result.Files)))
	return &dto.ResetSubmissionsResult{Deleted: result.Submissions}, nil
}

// RosterStatus lists every student with their progress on the teacher's homework, newest homework first.
func (s *HomeworkService) RosterStatus(ctx context.Context, teacherID string) ([]models.RosterStudent, error) {
	cells, err := s.submissions.RosterCells(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	roster := []models.RosterStudent{}
	index := map[string]int{}
	for _, cell := range cells {
		pos, ok := index[cell.StudentID]
		if !ok {
			pos = len(roster)
			index[cell.StudentID] = pos
			roster = append(roster, models.RosterStudent{
				ID:        cell.StudentID,
				Name:      cell.StudentName,
				StudentNo: cell.StudentNo,
				Homework:  []models.BoardHomework{},
			})
		}
		if cell.HomeworkID == nil {
			continue
		}
		entry := &roster[pos]
		item := models.BoardHomework{
			HomeworkID:   *cell.HomeworkID,
			Submitted:    cell.SubmissionID != nil,
			SubmittedAt:  cell.SubmittedAt,
			SubmissionID: cell.SubmissionID,
			ImageCount:   cell.ImageCount,
			ReviewStatus: cell.ReviewStatus,
			ReviewResult: cell.ReviewResult,
		}
		if cell.HomeworkTitle != nil {
			item.Title = *cell.HomeworkTitle
		}
		if cell.HomeworkSubject != nil {
			item.Subject = *cell.HomeworkSubject
		}
		if cell.MaxImages != nil {
			item.MaxImages = *cell.MaxImages
		}
		entry.Homework = append(entry.Homework, item)
		entry.TotalHomework++
		if item.Submitted {
			entry.SubmittedCount++
		}
	}
	return roster, nil
}

// UnsubmittedStudents lists students missing at least one of the teacher's homework, each narrowed
// to the homework still outstanding.
func (s *HomeworkService) UnsubmittedStudents(ctx context.Context, teacherID string) ([]models.RosterStudent, error) {
	roster, err := s.RosterStatus(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	missing := []models.RosterStudent{}
	for _, student := range roster {
		if student.SubmittedCount == student.TotalHomework {
			continue
		}
		outstanding := make([]models.BoardHomework, 0, student.TotalHomework-student.SubmittedCount)
		for _, item := range student.Homework {
			if !item.Submitted {
				outstanding = append(outstanding, item)
			}
		}
		student.Homework = outstanding
		missing = append(missing, student)
	}
	return missing, nil
}

// HomeworkDates returns the local days on which the teacher posted homework, newest first.
func (s *HomeworkService) HomeworkDates(ctx context.Context, teacherID string) ([]string, error) {
	dates, err := s.repo.CreatedDates(ctx, teacherID, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list homework dates")
	}
	return dates, nil
}

func pageOrDefault(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
