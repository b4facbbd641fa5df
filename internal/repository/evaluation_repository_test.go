package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-eval-api/internal/models"
)

var evaluationRowColumns = []string{"id", "course_id", "cms_id", "state", "name_de", "name_en", "vote_start_datetime", "vote_end_date", "wait_for_grade_upload_before_publishing", "created_at", "updated_at"}

func TestEvaluationRepositoryGetOrCreateCreatesGeneralContribution(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEvaluationRepository(db)
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE course_id = $1 AND cms_id = $2 FOR UPDATE")).
		WithArgs("c1", "ev-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO evaluations").
		WithArgs(sqlmock.AnyArg(), "c1", "ev-1", models.EvaluationStateNew, "", "", start, end, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contributions (id, evaluation_id, contributor_id, created_at) VALUES ($1, $2, NULL, $3)")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := repo.GetOrCreate(context.Background(), nil, "c1", "ev-1", models.EvaluationFields{
		VoteStartDatetime:                  start,
		VoteEndDate:                        end,
		WaitForGradeUploadBeforePublishing: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, models.EvaluationStateNew, result.Entity.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryGetOrCreateReturnsExisting(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEvaluationRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE course_id = $1 AND cms_id = $2 FOR UPDATE")).
		WithArgs("c1", "ev-1").
		WillReturnRows(sqlmock.NewRows(evaluationRowColumns).
			AddRow("e1", "c1", "ev-1", 40, "", "", now, now, false, now, now))

	result, err := repo.GetOrCreate(context.Background(), nil, "c1", "ev-1", models.EvaluationFields{})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, models.EvaluationStateApproved, result.Entity.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryUpdateWithChanges(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEvaluationRepository(db)
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)
	evaluation := &models.Evaluation{ID: "e1", VoteStartDatetime: start, VoteEndDate: end}

	changes, err := repo.UpdateWithChanges(context.Background(), nil, evaluation, models.EvaluationFields{
		VoteStartDatetime: start.In(time.FixedZone("CET", 3600)),
		VoteEndDate:       end,
	})
	require.NoError(t, err)
	assert.Empty(t, changes)

	mock.ExpectExec("UPDATE evaluations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	changes, err = repo.UpdateWithChanges(context.Background(), nil, evaluation, models.EvaluationFields{
		VoteStartDatetime: start,
		VoteEndDate:       end.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vote_end_date"}, changes.Fields())
	assert.True(t, evaluation.VoteEndDate.Equal(end.AddDate(0, 0, 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryReplaceParticipantsFromEmpty(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_profile_id FROM evaluation_participants WHERE evaluation_id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"user_profile_id"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM evaluation_participants")).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluation_participants")).
		WithArgs("e1", "s1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluation_participants")).
		WithArgs("e1", "s2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	changed, err := repo.ReplaceParticipants(context.Background(), nil, "e1", []string{"s1", "s2"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
