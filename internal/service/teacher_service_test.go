package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

type teacherRepoMock struct {
	teachers map[string]*models.Teacher
	created  []*models.Teacher
	updated  []*models.Teacher
}

func (m *teacherRepoMock) List(context.Context) ([]models.TeacherSummary, error) {
	var out []models.TeacherSummary
	for _, t := range m.teachers {
		out = append(out, models.TeacherSummary{Teacher: *t})
	}
	return out, nil
}

func (m *teacherRepoMock) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *t
	return &clone, nil
}

func (m *teacherRepoMock) ExistsByUsername(_ context.Context, username, excludeID string) (bool, error) {
	for id, t := range m.teachers {
		if t.Username == username && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *teacherRepoMock) Create(_ context.Context, teacher *models.Teacher) error {
	teacher.ID = "t-new"
	m.created = append(m.created, teacher)
	return nil
}

func (m *teacherRepoMock) Update(_ context.Context, teacher *models.Teacher) error {
	m.updated = append(m.updated, teacher)
	return nil
}

func (m *teacherRepoMock) ToggleAIReview(_ context.Context, id string) (bool, error) {
	t, ok := m.teachers[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	t.EnableAIReview = !t.EnableAIReview
	return t.EnableAIReview, nil
}

func newTestTeacherService(t *testing.T) (*TeacherService, *teacherRepoMock, *stubCascade, *memCacheRepo) {
	t.Helper()
	repo := &teacherRepoMock{teachers: map[string]*models.Teacher{
		"t-1": {ID: "t-1", Username: "zhang", Subject: "Math", EnableAIReview: true, PasswordHash: "old-hash"},
		"t-2": {ID: "t-2", Username: "li", Subject: "English", EnableAIReview: true},
	}}
	cascade := &stubCascade{}
	cacheRepo := &memCacheRepo{}
	svc := NewTeacherService(repo, cascade, &stubFiles{}, NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true), nil, zap.NewNop())
	return svc, repo, cascade, cacheRepo
}

func TestTeacherServiceCreateDefaultsAIReviewOn(t *testing.T) {
	svc, repo, _, _ := newTestTeacherService(t)

	teacher, err := svc.Create(context.Background(), dto.CreateTeacherRequest{Username: " wang ", Password: "secret1", Subject: "Physics"})
	require.NoError(t, err)
	assert.Equal(t, "wang", teacher.Username)
	assert.True(t, teacher.EnableAIReview)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte("secret1")))
	assert.Len(t, repo.created, 1)
}

func TestTeacherServiceCreateDuplicateUsername(t *testing.T) {
	svc, _, _, _ := newTestTeacherService(t)

	_, err := svc.Create(context.Background(), dto.CreateTeacherRequest{Username: "zhang", Password: "secret1", Subject: "Math"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestTeacherServiceUpdateKeepsPasswordWhenEmpty(t *testing.T) {
	svc, repo, _, _ := newTestTeacherService(t)
	off := false

	teacher, err := svc.Update(context.Background(), "t-1", dto.UpdateTeacherRequest{Username: "zhang", Subject: "Algebra", EnableAIReview: &off})
	require.NoError(t, err)
	assert.Equal(t, "old-hash", teacher.PasswordHash)
	assert.Equal(t, "Algebra", teacher.Subject)
	assert.False(t, teacher.EnableAIReview)
	require.Len(t, repo.updated, 1)

	_, err = svc.Update(context.Background(), "t-1", dto.UpdateTeacherRequest{Username: "li", Subject: "Math"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.Update(context.Background(), "t-9", dto.UpdateTeacherRequest{Username: "ghost", Subject: "Math"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTeacherServiceDeleteCascades(t *testing.T) {
	svc, _, cascade, cacheRepo := newTestTeacherService(t)

	require.NoError(t, svc.Delete(context.Background(), "t-1"))
	assert.Equal(t, []models.DeleteScope{{TeacherID: "t-1"}}, cascade.scopes)
	assert.Contains(t, cacheRepo.patterns, "board:*")

	cascade.err = sql.ErrNoRows
	err := svc.Delete(context.Background(), "t-9")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTeacherServiceToggleAIReview(t *testing.T) {
	svc, _, _, _ := newTestTeacherService(t)

	resp, err := svc.ToggleAIReview(context.Background(), "t-1")
	require.NoError(t, err)
	assert.False(t, resp.EnableAIReview)

	resp, err = svc.ToggleAIReview(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, resp.EnableAIReview)

	_, err = svc.ToggleAIReview(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
