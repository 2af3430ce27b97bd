package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/noah-isme/homework-review-api/internal/models"
	"github.com/noah-isme/homework-review-api/internal/repository"
	"github.com/noah-isme/homework-review-api/pkg/aichat"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/jobs"
)

// memSubmissions applies the same conditional transitions as the SQL repository.
type memSubmissions struct {
	mu            sync.Mutex
	rows          map[string]*models.Submission
	transitions   []models.StatusUpdate
	transitionErr error
}

func newMemSubmissions(rows ...models.Submission) *memSubmissions {
	m := &memSubmissions{rows: make(map[string]*models.Submission)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memSubmissions) GetOrCreate(_ context.Context, studentID, homeworkID string) (*models.Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.StudentID == studentID && row.HomeworkID == homeworkID {
			clone := *row
			return &clone, false, nil
		}
	}
	row := &models.Submission{
		ID:           "sub-new",
		StudentID:    studentID,
		HomeworkID:   homeworkID,
		SubmittedAt:  time.Now().UTC(),
		ReviewStatus: models.ReviewPending,
	}
	m.rows[row.ID] = row
	clone := *row
	return &clone, true, nil
}

func (m *memSubmissions) FindByID(_ context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (m *memSubmissions) Transition(_ context.Context, id string, update models.StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return false, m.transitionErr
	}
	row, ok := m.rows[id]
	if !ok || !models.CanTransition(row.ReviewStatus, update.To, update.Trigger) {
		return false, nil
	}
	m.transitions = append(m.transitions, update)
	row.ReviewStatus = update.To
	diagnostic := update.Diagnostic
	row.ReviewResult = &diagnostic
	at := update.At
	if update.To == models.ReviewReviewing {
		row.ReviewedAt = nil
		row.ReviewStartedAt = &at
	} else {
		row.ReviewedAt = &at
	}
	return true, nil
}

func (m *memSubmissions) SetDiagnostic(_ context.Context, id string, status models.ReviewStatus, diagnostic string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.ReviewStatus != status {
		return false, nil
	}
	row.ReviewResult = &diagnostic
	return true, nil
}

func (m *memSubmissions) set(id string, status models.ReviewStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.ReviewStatus = status
	}
}

func (m *memSubmissions) get(id string) (models.Submission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.Submission{}, false
	}
	return *row, true
}

func (m *memSubmissions) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok
}

type memImages struct {
	mu        sync.Mutex
	bySub     map[string][]models.SubmissionImage
	createErr error
}

func newMemImages() *memImages {
	return &memImages{bySub: make(map[string][]models.SubmissionImage)}
}

func (m *memImages) add(submissionID string, filenames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range filenames {
		m.bySub[submissionID] = append(m.bySub[submissionID], models.SubmissionImage{
			ID:           "img-" + name,
			SubmissionID: submissionID,
			Filename:     name,
		})
	}
}

func (m *memImages) CreateWithLimit(_ context.Context, image *models.SubmissionImage, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if len(m.bySub[image.SubmissionID]) >= limit {
		return repository.ErrImageLimitReached
	}
	if image.ID == "" {
		image.ID = "img-" + image.Filename
	}
	m.bySub[image.SubmissionID] = append(m.bySub[image.SubmissionID], *image)
	return nil
}

func (m *memImages) ListBySubmission(_ context.Context, submissionID string) ([]models.SubmissionImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SubmissionImage(nil), m.bySub[submissionID]...), nil
}

func (m *memImages) CountBySubmission(_ context.Context, submissionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySub[submissionID]), nil
}

func (m *memImages) FindByID(_ context.Context, id string) (*models.SubmissionImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, images := range m.bySub {
		for _, img := range images {
			if img.ID == id {
				found := img
				return &found, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memImages) Delete(_ context.Context, id string, remove repository.FileRemover) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub, images := range m.bySub {
		for i, img := range images {
			if img.ID != id {
				continue
			}
			if remove != nil {
				if err := remove([]string{img.Filename}); err != nil {
					return err
				}
			}
			m.bySub[sub] = append(images[:i], images[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type stubHomeworks struct {
	rows map[string]models.Homework
}

func (s *stubHomeworks) FindByID(_ context.Context, id string) (*models.Homework, error) {
	hw, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &hw, nil
}

type stubTeachers struct {
	byHomework map[string]models.Teacher
}

func (s *stubTeachers) FindByHomework(_ context.Context, homeworkID string) (*models.Teacher, error) {
	t, ok := s.byHomework[homeworkID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

type stubStudents struct {
	rows map[string]models.Student
}

func (s *stubStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	st, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

// stubCascade removes submissions from memSubmissions and hands image files to the remover.
type stubCascade struct {
	submissions *memSubmissions
	images      *memImages
	scopes      []models.DeleteScope
	err         error
}

func (s *stubCascade) Delete(_ context.Context, scope models.DeleteScope, remove repository.FileRemover) (repository.CascadeResult, error) {
	s.scopes = append(s.scopes, scope)
	if s.err != nil {
		return repository.CascadeResult{}, s.err
	}
	if scope.SubmissionID == "" {
		return repository.CascadeResult{Submissions: 1}, nil
	}
	var files []string
	if s.images != nil {
		images, _ := s.images.ListBySubmission(context.Background(), scope.SubmissionID)
		for _, img := range images {
			files = append(files, img.Filename)
		}
	}
	if s.submissions != nil && !s.submissions.remove(scope.SubmissionID) {
		return repository.CascadeResult{}, sql.ErrNoRows
	}
	if remove != nil && len(files) > 0 {
		if err := remove(files); err != nil {
			return repository.CascadeResult{}, err
		}
	}
	return repository.CascadeResult{Submissions: 1, Files: files}, nil
}

type stubFiles struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func (s *stubFiles) Save(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return name, nil
}

func (s *stubFiles) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, name)
	delete(s.saved, name)
	return nil
}

type chatReply struct {
	text string
	err  error
}

type stubChat struct {
	mu       sync.Mutex
	replies  []chatReply
	calls    int
	requests []aichat.ChatRequest
	tokens   []string
	onCall   func(call int)
}

func (s *stubChat) StreamChat(_ context.Context, token string, request aichat.ChatRequest) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.requests = append(s.requests, request)
	s.tokens = append(s.tokens, token)
	var reply chatReply
	if call <= len(s.replies) {
		reply = s.replies[call-1]
	} else if len(s.replies) > 0 {
		reply = s.replies[len(s.replies)-1]
	}
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return reply.text, reply.err
}

type stubCredentials struct {
	token       string
	ok          bool
	invalidated int
}

func (s *stubCredentials) GetOrRefresh(context.Context) (string, bool) {
	return s.token, s.ok
}

func (s *stubCredentials) Invalidate() {
	s.invalidated++
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type memCacheRepo struct {
	mu       sync.Mutex
	store    map[string][]byte
	patterns []string
}

func (m *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = payload
	return nil
}

func (m *memCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	m.store = nil
	return nil
}

func strPtr(s string) *string { return &s }
