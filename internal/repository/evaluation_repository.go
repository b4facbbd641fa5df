package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-eval-api/internal/models"
)

const evaluationColumns = `id, course_id, cms_id, state, name_de, name_en, vote_start_datetime, vote_end_date, wait_for_grade_upload_before_publishing, created_at, updated_at`

// EvaluationRepository persists evaluations, their participants and the general contribution.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetOrCreate returns the evaluation identified by (course, cms id). A missing evaluation is
// created in state new from defaults together with its general contribution.
func (r *EvaluationRepository) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, courseID, cmsID string, defaults models.EvaluationFields) (models.UpsertResult[models.Evaluation], error) {
	target := r.exec(exec)
	result := models.UpsertResult[models.Evaluation]{Changes: models.FieldChanges{}}

	var evaluation models.Evaluation
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE course_id = $1 AND cms_id = $2 FOR UPDATE`
	err := sqlx.GetContext(ctx, target, &evaluation, query, courseID, cmsID)
	if err == nil {
		result.Entity = &evaluation
		return result, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("lock evaluation: %w", err)
	}

	now := time.Now().UTC()
	evaluation = models.Evaluation{
		ID:                                 uuid.NewString(),
		CourseID:                           courseID,
		CMSID:                              cmsID,
		State:                              models.EvaluationStateNew,
		NameDE:                             defaults.NameDE,
		NameEN:                             defaults.NameEN,
		VoteStartDatetime:                  defaults.VoteStartDatetime,
		VoteEndDate:                        defaults.VoteEndDate,
		WaitForGradeUploadBeforePublishing: defaults.WaitForGradeUploadBeforePublishing,
		CreatedAt:                          now,
		UpdatedAt:                          now,
	}
	const insertQuery = `INSERT INTO evaluations (` + evaluationColumns + `)
VALUES (:id, :course_id, :cms_id, :state, :name_de, :name_en, :vote_start_datetime, :vote_end_date, :wait_for_grade_upload_before_publishing, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, &evaluation); err != nil {
		return result, fmt.Errorf("insert evaluation: %w", err)
	}

	const generalQuery = `INSERT INTO contributions (id, evaluation_id, contributor_id, created_at) VALUES ($1, $2, NULL, $3)`
	if _, err := target.ExecContext(ctx, generalQuery, uuid.NewString(), evaluation.ID, now); err != nil {
		return result, fmt.Errorf("insert general contribution: %w", err)
	}

	result.Entity = &evaluation
	result.Created = true
	return result, nil
}

// UpdateWithChanges applies fields to evaluation and persists them when anything differs.
func (r *EvaluationRepository) UpdateWithChanges(ctx context.Context, exec sqlx.ExtContext, evaluation *models.Evaluation, fields models.EvaluationFields) (models.FieldChanges, error) {
	if evaluation == nil {
		return nil, fmt.Errorf("evaluation is nil")
	}
	changes := models.FieldChanges{}
	trackField(changes, "name_de", &evaluation.NameDE, fields.NameDE)
	trackField(changes, "name_en", &evaluation.NameEN, fields.NameEN)
	trackTime(changes, "vote_start_datetime", &evaluation.VoteStartDatetime, fields.VoteStartDatetime)
	trackTime(changes, "vote_end_date", &evaluation.VoteEndDate, fields.VoteEndDate)
	trackField(changes, "wait_for_grade_upload_before_publishing", &evaluation.WaitForGradeUploadBeforePublishing, fields.WaitForGradeUploadBeforePublishing)
	if len(changes) == 0 {
		return changes, nil
	}

	evaluation.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE evaluations SET name_de = :name_de, name_en = :name_en, vote_start_datetime = :vote_start_datetime, vote_end_date = :vote_end_date, wait_for_grade_upload_before_publishing = :wait_for_grade_upload_before_publishing, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), updateQuery, evaluation); err != nil {
		return nil, fmt.Errorf("update evaluation: %w", err)
	}
	return changes, nil
}

// ReplaceParticipants sets the evaluation's participants to exactly userIDs.
func (r *EvaluationRepository) ReplaceParticipants(ctx context.Context, exec sqlx.ExtContext, evaluationID string, userIDs []string) (bool, error) {
	return replaceAssociations(ctx, r.exec(exec), "evaluation_participants", "evaluation_id", "user_profile_id", evaluationID, userIDs)
}
