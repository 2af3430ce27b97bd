package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/models"
	appErrors "github.com/noah-isme/homework-review-api/pkg/errors"
	"github.com/noah-isme/homework-review-api/pkg/jobs"
)

type submissionFixture struct {
	svc         *SubmissionService
	submissions *memSubmissions
	images      *memImages
	queue       *stubQueue
	files       *stubFiles
	cascade     *stubCascade
	teachers    *stubTeachers
}

func newSubmissionFixture(t *testing.T, status models.ReviewStatus, cfg SubmissionServiceConfig) *submissionFixture {
	t.Helper()
	submissions := newMemSubmissions(models.Submission{
		ID:           "sub-1",
		StudentID:    "stu-1",
		HomeworkID:   "hw-1",
		SubmittedAt:  time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC),
		ReviewStatus: status,
	})
	images := newMemImages()
	queue := &stubQueue{}
	files := &stubFiles{}
	cascade := &stubCascade{submissions: submissions, images: images}
	teachers := &stubTeachers{byHomework: map[string]models.Teacher{
		"hw-1": {ID: "t-1", Subject: "Math", EnableAIReview: true},
	}}

	svc := NewSubmissionService(SubmissionServiceParams{
		Submissions: submissions,
		Images:      images,
		Homeworks: &stubHomeworks{rows: map[string]models.Homework{
			"hw-1": {ID: "hw-1", TeacherID: "t-1", Subject: "Math", Title: "Workbook p.12", MaxImages: 2},
		}},
		Students: &stubStudents{rows: map[string]models.Student{"stu-1": {ID: "stu-1", Name: "Lin", StudentNo: "01"}}},
		Teachers: teachers,
		Cascade:  cascade,
		Files:    files,
		Queue:    queue,
		Cache:    NewCacheService(&memCacheRepo{}, nil, time.Minute, zap.NewNop(), true),
		Logger:   zap.NewNop(),
		Config:   cfg,
	})
	return &submissionFixture{
		svc:         svc,
		submissions: submissions,
		images:      images,
		queue:       queue,
		files:       files,
		cascade:     cascade,
		teachers:    teachers,
	}
}

func defaultSubmissionConfig() SubmissionServiceConfig {
	return SubmissionServiceConfig{ImageUploadEnabled: true, AIReviewEnabled: true, MaxImages: 5}
}

func requireAppError(t *testing.T, err error, want *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, want.Code, appErr.Code)
	assert.Equal(t, want.Status, appErr.Status)
	return appErr
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.NRGBA{R: 200, A: 128})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSubmissionCreateReturnsExistingSubmission(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	resp, err := f.svc.Create(context.Background(), dto.CreateSubmissionRequest{StudentID: "stu-1", HomeworkID: "hw-1"})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", resp.SubmissionID)
	assert.True(t, resp.Existing)
	assert.Equal(t, "Math", resp.Subject)
	assert.Equal(t, 2, resp.MaxImages)
}

func TestSubmissionCreateUnknownStudent(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	_, err := f.svc.Create(context.Background(), dto.CreateSubmissionRequest{StudentID: "ghost", HomeworkID: "hw-1"})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestSubmissionUploadImageStoresJPEG(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	resp, err := f.svc.UploadImage(context.Background(), "sub-1", dto.UploadImageRequest{ImageData: pngBase64(t)})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(resp.Filename, ".jpg"))
	assert.NotContains(t, resp.Filename, "-")
	assert.Equal(t, "/uploads/"+resp.Filename, resp.URL)
	assert.True(t, strings.HasPrefix(resp.OriginalFilename, "camera_"))
	require.Contains(t, f.files.saved, resp.Filename)
	assert.Equal(t, []byte{0xFF, 0xD8}, f.files.saved[resp.Filename][:2])

	count, _ := f.images.CountBySubmission(context.Background(), "sub-1")
	assert.Equal(t, 1, count)
}

func TestSubmissionUploadImageEnforcesLimit(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg", "b.jpg")

	_, err := f.svc.UploadImage(context.Background(), "sub-1", dto.UploadImageRequest{ImageData: pngBase64(t)})
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "at most 2 images may be uploaded", appErr.Message)

	require.Len(t, f.files.deleted, 1)
	assert.Empty(t, f.files.saved)
}

func TestSubmissionUploadImageRejectsGarbage(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	_, err := f.svc.UploadImage(context.Background(), "sub-1", dto.UploadImageRequest{ImageData: base64.StdEncoding.EncodeToString([]byte("not an image"))})
	requireAppError(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.files.saved)
}

func TestSubmissionUploadDisabled(t *testing.T) {
	cfg := defaultSubmissionConfig()
	cfg.ImageUploadEnabled = false
	f := newSubmissionFixture(t, models.ReviewPending, cfg)

	_, err := f.svc.UploadImage(context.Background(), "sub-1", dto.UploadImageRequest{ImageData: pngBase64(t)})
	requireAppError(t, err, appErrors.ErrFeatureDisabled)

	err = f.svc.DeleteImage(context.Background(), "img-a.jpg")
	requireAppError(t, err, appErrors.ErrFeatureDisabled)
}

func TestSubmissionDeleteImageRemovesFile(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	require.NoError(t, f.svc.DeleteImage(context.Background(), "img-a.jpg"))
	assert.Equal(t, []string{"a.jpg"}, f.files.deleted)

	err := f.svc.DeleteImage(context.Background(), "img-a.jpg")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestSubmissionDeleteImageDuringReviewConflicts(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewReviewing, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	err := f.svc.DeleteImage(context.Background(), "img-a.jpg")
	requireAppError(t, err, appErrors.ErrConflict)
	assert.Empty(t, f.files.deleted)
	count, _ := f.images.CountBySubmission(context.Background(), "sub-1")
	assert.Equal(t, 1, count)
}

func TestSubmissionFinalizeRequiresImages(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	_, err := f.svc.Finalize(context.Background(), "sub-1")
	requireAppError(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.queue.jobs)
}

func TestSubmissionFinalizeDispatchesReview(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	result, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)

	assert.True(t, result.AIReviewEnabled)
	assert.False(t, result.AlreadyReviewing)
	assert.Equal(t, models.ReviewReviewing, result.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, jobs.Job{ID: "sub-1", Type: ReviewJobType}, f.queue.jobs[0])

	row, _ := f.submissions.get("sub-1")
	assert.Equal(t, models.ReviewReviewing, row.ReviewStatus)
	assert.NotNil(t, row.ReviewStartedAt)
}

func TestSubmissionFinalizeTwiceDispatchesOnce(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	_, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)
	second, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)

	assert.True(t, second.AlreadyReviewing)
	assert.Len(t, f.queue.jobs, 1)
}

func TestSubmissionFinalizeAfterVerdictDoesNotRedispatch(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewApproved, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	result, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyReviewing)
	assert.Equal(t, models.ReviewApproved, result.Status)
	assert.Equal(t, "submission already reviewed: approved", result.Message)
	assert.Empty(t, f.queue.jobs)
}

func TestSubmissionFinalizeWithoutAIReview(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")
	f.teachers.byHomework["hw-1"] = models.Teacher{ID: "t-1", Subject: "Math", EnableAIReview: false}

	result, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.False(t, result.AIReviewEnabled)
	assert.Equal(t, models.ReviewPending, result.Status)
	assert.Empty(t, f.queue.jobs)
}

func TestSubmissionFinalizeWithUploadsDisabledSkipsImageCheck(t *testing.T) {
	cfg := defaultSubmissionConfig()
	cfg.ImageUploadEnabled = false
	f := newSubmissionFixture(t, models.ReviewPending, cfg)

	result, err := f.svc.Finalize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.False(t, result.AIReviewEnabled)
	assert.Empty(t, f.queue.jobs)
}

func TestSubmissionFinalizeQueueFullMarksError(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")
	f.queue.err = jobs.ErrQueueFull

	_, err := f.svc.Finalize(context.Background(), "sub-1")
	requireAppError(t, err, appErrors.ErrQueueUnavailable)

	row, _ := f.submissions.get("sub-1")
	assert.Equal(t, models.ReviewError, row.ReviewStatus)
	assert.Equal(t, models.DiagnosticQueueFull, *row.ReviewResult)
}

func TestSubmissionRetry(t *testing.T) {
	cases := []struct {
		name   string
		status models.ReviewStatus
		valid  bool
	}{
		{name: "from error", status: models.ReviewError, valid: true},
		{name: "from rejected", status: models.ReviewRejected, valid: true},
		{name: "from pending", status: models.ReviewPending},
		{name: "from reviewing", status: models.ReviewReviewing},
		{name: "from approved", status: models.ReviewApproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSubmissionFixture(t, tc.status, defaultSubmissionConfig())

			result, err := f.svc.Retry(context.Background(), "t-1", "sub-1")
			row, _ := f.submissions.get("sub-1")
			if !tc.valid {
				requireAppError(t, err, appErrors.ErrValidation)
				assert.Empty(t, f.queue.jobs)
				assert.Equal(t, tc.status, row.ReviewStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.ReviewReviewing, result.Status)
			assert.Equal(t, models.ReviewReviewing, row.ReviewStatus)
			assert.Len(t, f.queue.jobs, 1)
		})
	}
}

func TestSubmissionRetryChecksOwnership(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewError, defaultSubmissionConfig())

	_, err := f.svc.Retry(context.Background(), "t-2", "sub-1")
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestSubmissionRetryRequiresAIReview(t *testing.T) {
	cfg := defaultSubmissionConfig()
	cfg.AIReviewEnabled = false
	f := newSubmissionFixture(t, models.ReviewError, cfg)

	_, err := f.svc.Retry(context.Background(), "t-1", "sub-1")
	requireAppError(t, err, appErrors.ErrFeatureDisabled)
}

func TestSubmissionOverrideApprove(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewRejected, defaultSubmissionConfig())

	result, err := f.svc.Override(context.Background(), "t-1", "sub-1", dto.OverrideRequest{Action: models.OverrideApprove})
	require.NoError(t, err)
	require.NotNil(t, result.Status)
	assert.Equal(t, models.ReviewApproved, *result.Status)

	row, _ := f.submissions.get("sub-1")
	assert.Equal(t, models.ReviewApproved, row.ReviewStatus)
	assert.Equal(t, models.DiagnosticTeacherApprove, *row.ReviewResult)
}

func TestSubmissionOverrideApproveAlreadyApproved(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewApproved, defaultSubmissionConfig())

	_, err := f.svc.Override(context.Background(), "t-1", "sub-1", dto.OverrideRequest{Action: models.OverrideApprove})
	appErr := requireAppError(t, err, appErrors.ErrIllegalTransition)
	assert.Equal(t, "submission is already approved", appErr.Message)
}

func TestSubmissionOverrideRejectAndDelete(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewRejected, defaultSubmissionConfig())
	f.images.add("sub-1", "a.jpg")

	result, err := f.svc.Override(context.Background(), "t-1", "sub-1", dto.OverrideRequest{Action: models.OverrideRejectAndDelete})
	require.NoError(t, err)
	assert.True(t, result.Deleted)

	_, exists := f.submissions.get("sub-1")
	assert.False(t, exists)
	assert.Equal(t, []string{"a.jpg"}, f.files.deleted)
}

func TestSubmissionOverrideUnknownAction(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewRejected, defaultSubmissionConfig())

	_, err := f.svc.Override(context.Background(), "t-1", "sub-1", dto.OverrideRequest{Action: "archive"})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestSubmissionDeleteMissing(t *testing.T) {
	f := newSubmissionFixture(t, models.ReviewPending, defaultSubmissionConfig())

	require.NoError(t, f.svc.DeleteSubmission(context.Background(), "sub-1"))
	err := f.svc.DeleteSubmission(context.Background(), "sub-1")
	requireAppError(t, err, appErrors.ErrNotFound)
}
