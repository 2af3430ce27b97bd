package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

type rosterLister interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type dailyHomeworkLister interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Homework, error)
}

type boardCellLister interface {
	BoardCells(ctx context.Context, from, to time.Time) ([]models.BoardCell, error)
}

// BoardServiceParams groups constructor dependencies.
type BoardServiceParams struct {
	Students    rosterLister
	Homeworks   dailyHomeworkLister
	Submissions boardCellLister
	Cache       *CacheService
	Location    *time.Location
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// BoardService builds the student-facing board of today's homework.
type BoardService struct {
	students    rosterLister
	homeworks   dailyHomeworkLister
	submissions boardCellLister
	cache       *CacheService
	location    *time.Location
	ttl         time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewBoardService constructs a BoardService.
func NewBoardService(p BoardServiceParams) *BoardService {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return &BoardService{
		students:    p.Students,
		homeworks:   p.Homeworks,
		submissions: p.Submissions,
		cache:       p.Cache,
		location:    loc,
		ttl:         p.CacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Today returns every student with the homework posted since local midnight, grouped by subject.
// The bool reports a cache hit.
func (s *BoardService) Today(ctx context.Context) ([]models.BoardStudent, bool, error) {
	dayStart := StartOfDay(s.now(), s.location)
	dayEnd := dayStart.AddDate(0, 0, 1)
	key := BoardCacheKey(dayStart)

	var cached []models.BoardStudent
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	homeworks, err := s.homeworks.ListCreatedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}
	cells, err := s.submissions.BoardCells(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	board := assembleBoard(students, homeworks, cells)
	_ = s.cache.Set(ctx, key, board, s.ttl)
	return board, false, nil
}

func assembleBoard(students []models.Student, homeworks []models.Homework, cells []models.BoardCell) []models.BoardStudent {
	type cellKey struct{ student, homework string }
	byPair := make(map[cellKey]models.BoardCell, len(cells))
	for _, cell := range cells {
		byPair[cellKey{cell.StudentID, cell.HomeworkID}] = cell
	}

	board := make([]models.BoardStudent, 0, len(students))
	for _, st := range students {
		row := models.BoardStudent{
			ID:        st.ID,
			Name:      st.Name,
			StudentNo: st.StudentNo,
			Homework:  make(map[string][]models.BoardHomework),
		}
		for _, hw := range homeworks {
			entry := models.BoardHomework{
				HomeworkID: hw.ID,
				Title:      hw.Title,
				MaxImages:  hw.ImageLimit(0),
			}
			if cell, ok := byPair[cellKey{st.ID, hw.ID}]; ok && cell.SubmissionID != nil {
				entry.Submitted = true
				entry.SubmissionID = cell.SubmissionID
				entry.SubmittedAt = cell.SubmittedAt
				entry.ImageCount = cell.ImageCount
				entry.ReviewStatus = cell.ReviewStatus
				entry.ReviewResult = cell.ReviewResult
			}
			row.Homework[hw.Subject] = append(row.Homework[hw.Subject], entry)
		}
		board = append(board, row)
	}
	return board
}
