package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homework-review-api/internal/models"
)

func TestTeacherRepositoryToggleAIReview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE teachers SET enable_ai_review = NOT enable_ai_review")).
		WithArgs("t-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"enable_ai_review"}).AddRow(false))

	enabled, err := repo.ToggleAIReview(context.Background(), "t-1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestTeacherRepositoryExistsByUsername(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers WHERE username = $1 AND id <> $2")).
		WithArgs("mr.wang", "t-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByUsername(context.Background(), "mr.wang", "t-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTeacherRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET username")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Teacher{ID: "missing", Username: "x", Subject: "math"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStudentRepositoryListWithSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(st.name) LIKE $1")).
		WithArgs("%li%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_no", "name", "created_at", "updated_at", "submission_count"}).
			AddRow("s-1", "001", "Li Lei", now, now, 4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students st")).
		WithArgs("%li%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.StudentFilter{Search: "Li"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].SubmissionCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHomeworkRepositoryCountCreatedBefore(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHomeworkRepository(db)

	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM homeworks WHERE created_at < $1")).
		WithArgs(midnight).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountCreatedBefore(context.Background(), midnight)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestHomeworkRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHomeworkRepository(db)

	prompt := "Is this a geometry worksheet?"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO homeworks")).
		WithArgs(sqlmock.AnyArg(), "t-1", "math", "Worksheet 3", &prompt, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	hw := &models.Homework{TeacherID: "t-1", Subject: "math", Title: "Worksheet 3", AIPrompt: &prompt, MaxImages: 3}
	require.NoError(t, repo.Create(context.Background(), hw))
	assert.NotEmpty(t, hw.ID)
}

func TestAdminRepositoryCreateIfAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAdminRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (username) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "admin", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfAbsent(context.Background(), &models.Admin{Username: "admin", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestHomeworkRepositoryCreatedDates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHomeworkRepository(db)

	shanghai := time.FixedZone("Asia/Shanghai", 8*3600)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT to_char(created_at AT TIME ZONE $2, 'YYYY-MM-DD') AS day")).
		WithArgs("t-1", "Asia/Shanghai").
		WillReturnRows(sqlmock.NewRows([]string{"day"}).AddRow("2024-09-03").AddRow("2024-09-02"))

	dates, err := repo.CreatedDates(context.Background(), "t-1", shanghai)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-09-03", "2024-09-02"}, dates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryRosterCellsKeepsStudentsWithoutHomework(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	submitted := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	columns := []string{"student_id", "student_name", "student_no", "homework_id", "homework_title", "homework_subject", "max_images",
		"submission_id", "submitted_at", "ai_review_status", "ai_review_result", "image_count"}
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN homeworks h ON h.teacher_id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s-1", "Lin", "01", "hw-1", "p.12", "Math", 9, "sub-1", submitted, "approved", "passed AI review", 2).
			AddRow("s-2", "Zhou", "02", nil, nil, nil, nil, nil, nil, nil, nil, 0))

	cells, err := repo.RosterCells(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, cells, 2)
	require.NotNil(t, cells[0].ReviewStatus)
	assert.Equal(t, models.ReviewApproved, *cells[0].ReviewStatus)
	assert.Equal(t, 2, cells[0].ImageCount)
	assert.Nil(t, cells[1].HomeworkID)
	require.NoError(t, mock.ExpectationsWereMet())
}
