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

// ContributionRepository persists contributor assignments.
type ContributionRepository struct {
	db *sqlx.DB
}

// NewContributionRepository constructs the repository.
func NewContributionRepository(db *sqlx.DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func (r *ContributionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetOrCreate returns the contribution of contributorID to evaluationID, creating it when missing.
func (r *ContributionRepository) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, evaluationID, contributorID string) (models.UpsertResult[models.Contribution], error) {
	target := r.exec(exec)
	result := models.UpsertResult[models.Contribution]{Changes: models.FieldChanges{}}

	var contribution models.Contribution
	const selectQuery = `SELECT id, evaluation_id, contributor_id, created_at FROM contributions WHERE evaluation_id = $1 AND contributor_id = $2`
	err := sqlx.GetContext(ctx, target, &contribution, selectQuery, evaluationID, contributorID)
	if err == nil {
		result.Entity = &contribution
		return result, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("get contribution: %w", err)
	}

	contribution = models.Contribution{
		ID:            uuid.NewString(),
		EvaluationID:  evaluationID,
		ContributorID: sql.NullString{String: contributorID, Valid: true},
		CreatedAt:     time.Now().UTC(),
	}
	const insertQuery = `INSERT INTO contributions (id, evaluation_id, contributor_id, created_at) VALUES (:id, :evaluation_id, :contributor_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, &contribution); err != nil {
		return result, fmt.Errorf("insert contribution: %w", err)
	}
	result.Entity = &contribution
	result.Created = true
	return result, nil
}
