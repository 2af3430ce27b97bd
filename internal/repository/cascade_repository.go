package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/homework-review-api/internal/models"
)

// FileRemover deletes stored image files. It runs inside the transaction so a failure rolls it back.
type FileRemover func(filenames []string) error

// CascadeResult summarises a cascade delete.
type CascadeResult struct {
	Submissions int64
	Files       []string
}

// CascadeRepository removes submissions together with their images, files and owning row.
type CascadeRepository struct {
	db *sqlx.DB
}

// NewCascadeRepository constructs a CascadeRepository.
func NewCascadeRepository(db *sqlx.DB) *CascadeRepository {
	return &CascadeRepository{db: db}
}

type cascadePlan struct {
	filter string
	arg    string
	owner  []string
	// allowEmpty accepts a scope that matched nothing instead of reporting sql.ErrNoRows.
	allowEmpty bool
}

func planFor(scope models.DeleteScope) (cascadePlan, error) {
	switch {
	case scope.SubmissionID != "":
		return cascadePlan{filter: "s.id = $1", arg: scope.SubmissionID}, nil
	case scope.HomeworkID != "":
		return cascadePlan{filter: "s.homework_id = $1", arg: scope.HomeworkID, owner: []string{
			`DELETE FROM homeworks WHERE id = $1`,
		}}, nil
	case scope.TeacherID != "":
		return cascadePlan{filter: "s.homework_id IN (SELECT id FROM homeworks WHERE teacher_id = $1)", arg: scope.TeacherID, owner: []string{
			`DELETE FROM homeworks WHERE teacher_id = $1`,
			`DELETE FROM teachers WHERE id = $1`,
		}}, nil
	case scope.SubmissionsOfTeacherID != "":
		return cascadePlan{filter: "s.homework_id IN (SELECT id FROM homeworks WHERE teacher_id = $1)", arg: scope.SubmissionsOfTeacherID, allowEmpty: true}, nil
	case scope.StudentID != "":
		return cascadePlan{filter: "s.student_id = $1", arg: scope.StudentID, owner: []string{
			`DELETE FROM students WHERE id = $1`,
		}}, nil
	default:
		return cascadePlan{}, fmt.Errorf("empty delete scope")
	}
}

// Delete removes image rows, then submissions, then the owning row, then calls remove with the
// image filenames before committing. A missing target yields sql.ErrNoRows unless the scope
// only clears submissions.
func (r *CascadeRepository) Delete(ctx context.Context, scope models.DeleteScope, remove FileRemover) (result CascadeResult, err error) {
	plan, err := planFor(scope)
	if err != nil {
		return result, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin cascade delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	filesQuery := fmt.Sprintf(`SELECT i.filename FROM submission_images i JOIN submissions s ON s.id = i.submission_id WHERE %s FOR UPDATE OF i`, plan.filter)
	if err = tx.SelectContext(ctx, &result.Files, filesQuery, plan.arg); err != nil {
		return result, fmt.Errorf("collect image files: %w", err)
	}

	imagesQuery := fmt.Sprintf(`DELETE FROM submission_images WHERE submission_id IN (SELECT s.id FROM submissions s WHERE %s)`, plan.filter)
	if _, err = tx.ExecContext(ctx, imagesQuery, plan.arg); err != nil {
		return result, fmt.Errorf("delete image rows: %w", err)
	}

	submissionsQuery := fmt.Sprintf(`DELETE FROM submissions s WHERE %s`, plan.filter)
	res, err := tx.ExecContext(ctx, submissionsQuery, plan.arg)
	if err != nil {
		return result, fmt.Errorf("delete submissions: %w", err)
	}
	if result.Submissions, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("submissions rows affected: %w", err)
	}

	targetRemoved := result.Submissions > 0
	for i, stmt := range plan.owner {
		res, err = tx.ExecContext(ctx, stmt, plan.arg)
		if err != nil {
			return result, fmt.Errorf("delete owner: %w", err)
		}
		if i == len(plan.owner)-1 {
			affected, affErr := res.RowsAffected()
			if affErr != nil {
				err = fmt.Errorf("owner rows affected: %w", affErr)
				return result, err
			}
			targetRemoved = affected > 0
		}
	}
	if !targetRemoved && !plan.allowEmpty {
		err = sql.ErrNoRows
		return result, err
	}

	if remove != nil && len(result.Files) > 0 {
		if err = remove(result.Files); err != nil {
			return result, fmt.Errorf("remove image files: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit cascade delete: %w", err)
	}
	return result, nil
}
