package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/middleware"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
)

type fakeHomeworkSrv struct {
	createdBy      string
	listFilter     models.HomeworkFilter
	deleteScope    []string
	submissionArgs models.SubmissionFilter
	abnormalFor    string
	resetFor       string
	rosterFor      []string
}

func (f *fakeHomeworkSrv) Create(_ context.Context, teacherID string, req dto.CreateHomeworkRequest) (*models.Homework, error) {
	f.createdBy = teacherID
	return &models.Homework{ID: "hw-1", TeacherID: teacherID, Title: req.Title}, nil
}

func (f *fakeHomeworkSrv) List(_ context.Context, filter models.HomeworkFilter) ([]models.HomeworkSummary, *models.Pagination, error) {
	f.listFilter = filter
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeHomeworkSrv) Delete(_ context.Context, teacherID, id string) error {
	f.deleteScope = append(f.deleteScope, teacherID+"/"+id)
	return nil
}

func (f *fakeHomeworkSrv) Submissions(_ context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	f.submissionArgs = filter
	return nil, &models.Pagination{}, nil
}

func (f *fakeHomeworkSrv) AbnormalSubmissions(_ context.Context, teacherID string, _, _ int) ([]models.SubmissionDetail, *models.Pagination, error) {
	f.abnormalFor = teacherID
	return nil, &models.Pagination{}, nil
}

func (f *fakeHomeworkSrv) ResetSubmissions(_ context.Context, teacherID string) (*dto.ResetSubmissionsResult, error) {
	f.resetFor = teacherID
	return &dto.ResetSubmissionsResult{Deleted: 4}, nil
}

func (f *fakeHomeworkSrv) RosterStatus(_ context.Context, teacherID string) ([]models.RosterStudent, error) {
	f.rosterFor = append(f.rosterFor, teacherID)
	return []models.RosterStudent{{ID: "s-1", Name: "Lin", SubmittedCount: 1, TotalHomework: 2}}, nil
}

func (f *fakeHomeworkSrv) UnsubmittedStudents(_ context.Context, teacherID string) ([]models.RosterStudent, error) {
	f.rosterFor = append(f.rosterFor, teacherID)
	return []models.RosterStudent{}, nil
}

func (f *fakeHomeworkSrv) HomeworkDates(context.Context, string) ([]string, error) {
	return []string{"2024-09-03", "2024-09-02"}, nil
}

type fakeReviewSrv struct {
	retryFor    string
	overrideReq dto.OverrideRequest
	overrideErr error
}

func (f *fakeReviewSrv) Retry(_ context.Context, teacherID, id string) (*dto.FinalizeResult, error) {
	f.retryFor = teacherID
	return &dto.FinalizeResult{SubmissionID: id, Status: models.ReviewReviewing}, nil
}

func (f *fakeReviewSrv) Override(_ context.Context, _ string, id string, req dto.OverrideRequest) (*dto.OverrideResult, error) {
	f.overrideReq = req
	if f.overrideErr != nil {
		return nil, f.overrideErr
	}
	return &dto.OverrideResult{SubmissionID: id, Action: req.Action}, nil
}

func newHomeworkRouter(claims *models.JWTClaims, homeworks *fakeHomeworkSrv, reviews *fakeReviewSrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHomeworkHandler(homeworks, reviews)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	r.POST("/homeworks", h.Create)
	r.GET("/homeworks", h.List)
	r.DELETE("/homeworks/:id", h.Delete)
	r.GET("/submissions", h.Submissions)
	r.GET("/abnormal", h.Abnormal)
	r.POST("/submissions/:id/retry", h.Retry)
	r.POST("/submissions/:id/override", h.Override)
	r.POST("/submissions/reset", h.ResetSubmissions)
	r.GET("/students-status", h.StudentsStatus)
	r.GET("/unsubmitted-students", h.UnsubmittedStudents)
	r.GET("/homework-dates", h.HomeworkDates)
	return r
}

func TestHomeworkHandlerScopesTeacherRequests(t *testing.T) {
	homeworks := &fakeHomeworkSrv{}
	reviews := &fakeReviewSrv{}
	r := newHomeworkRouter(&models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, homeworks, reviews)

	rec := serve(r, http.MethodPost, "/homeworks", `{"title":"p.12"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "t-1", homeworks.createdBy)

	serve(r, http.MethodGet, "/homeworks?page=2&page_size=5", "")
	assert.Equal(t, models.HomeworkFilter{TeacherID: "t-1", Page: 2, PageSize: 5}, homeworks.listFilter)

	serve(r, http.MethodDelete, "/homeworks/hw-9", "")
	assert.Equal(t, []string{"t-1/hw-9"}, homeworks.deleteScope)

	serve(r, http.MethodGet, "/abnormal", "")
	assert.Equal(t, "t-1", homeworks.abnormalFor)

	rec = serve(r, http.MethodPost, "/submissions/sub-1/retry", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "t-1", reviews.retryFor)
}

func TestHomeworkHandlerAdminSeesEverything(t *testing.T) {
	homeworks := &fakeHomeworkSrv{}
	r := newHomeworkRouter(&models.JWTClaims{UserID: "a-1", Role: models.RoleAdmin}, homeworks, &fakeReviewSrv{})

	serve(r, http.MethodGet, "/homeworks", "")
	assert.Empty(t, homeworks.listFilter.TeacherID)

	serve(r, http.MethodDelete, "/homeworks/hw-1", "")
	assert.Equal(t, []string{"/hw-1"}, homeworks.deleteScope)
}

func TestHomeworkHandlerSubmissionStatusFilter(t *testing.T) {
	homeworks := &fakeHomeworkSrv{}
	r := newHomeworkRouter(&models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, homeworks, &fakeReviewSrv{})

	rec := serve(r, http.MethodGet, "/submissions?homework_id=hw-1&status=rejected", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hw-1", homeworks.submissionArgs.HomeworkID)
	assert.Equal(t, []models.ReviewStatus{models.ReviewRejected}, homeworks.submissionArgs.Statuses)

	rec = serve(r, http.MethodGet, "/submissions?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHomeworkHandlerOverride(t *testing.T) {
	reviews := &fakeReviewSrv{}
	r := newHomeworkRouter(&models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, &fakeHomeworkSrv{}, reviews)

	rec := serve(r, http.MethodPost, "/submissions/sub-1/override", `{"action":"approve"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OverrideApprove, reviews.overrideReq.Action)

	reviews.overrideErr = appErrors.Clone(appErrors.ErrIllegalTransition, "submission is already approved")
	rec = serve(r, http.MethodPost, "/submissions/sub-1/override", `{"action":"approve"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHomeworkHandlerRosterViews(t *testing.T) {
	homeworks := &fakeHomeworkSrv{}
	r := newHomeworkRouter(&models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, homeworks, &fakeReviewSrv{})

	rec := serve(r, http.MethodPost, "/submissions/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t-1", homeworks.resetFor)
	assert.Equal(t, 4.0, decodeEnvelope(t, rec)["data"].(map[string]interface{})["deleted"])

	rec = serve(r, http.MethodGet, "/students-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decodeEnvelope(t, rec)["data"].([]interface{})
	require.Len(t, roster, 1)
	assert.Equal(t, 2.0, roster[0].(map[string]interface{})["total_homework"])

	rec = serve(r, http.MethodGet, "/unsubmitted-students", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeEnvelope(t, rec)["data"])
	assert.Equal(t, []string{"t-1", "t-1"}, homeworks.rosterFor)

	rec = serve(r, http.MethodGet, "/homework-dates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"2024-09-03", "2024-09-02"}, decodeEnvelope(t, rec)["data"])
}

func TestHomeworkHandlerRequiresClaims(t *testing.T) {
	r := newHomeworkRouter(nil, &fakeHomeworkSrv{}, &fakeReviewSrv{})

	rec := serve(r, http.MethodGet, "/homeworks", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
