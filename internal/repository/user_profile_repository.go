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

const userProfileColumns = `id, email, title, first_name_given, last_name, is_active, created_at, updated_at`

// UserProfileRepository persists user profiles keyed by normalised email.
type UserProfileRepository struct {
	db *sqlx.DB
}

// NewUserProfileRepository constructs the repository.
func NewUserProfileRepository(db *sqlx.DB) *UserProfileRepository {
	return &UserProfileRepository{db: db}
}

func (r *UserProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByEmail loads a profile by its normalised email.
func (r *UserProfileRepository) FindByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	query := `SELECT ` + userProfileColumns + ` FROM user_profiles WHERE email = $1`
	var profile models.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, email); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateOrCreateByEmail applies fields to the profile with the given email, creating it when missing.
// A created profile reports no changes.
func (r *UserProfileRepository) UpdateOrCreateByEmail(ctx context.Context, exec sqlx.ExtContext, email string, fields models.UserProfileFields) (models.UpsertResult[models.UserProfile], error) {
	target := r.exec(exec)
	result := models.UpsertResult[models.UserProfile]{Changes: models.FieldChanges{}}

	var profile models.UserProfile
	query := `SELECT ` + userProfileColumns + ` FROM user_profiles WHERE email = $1 FOR UPDATE`
	err := sqlx.GetContext(ctx, target, &profile, query, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		profile = models.UserProfile{
			ID:             uuid.NewString(),
			Email:          email,
			Title:          fields.Title,
			FirstNameGiven: fields.FirstNameGiven,
			LastName:       fields.LastName,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		const insertQuery = `INSERT INTO user_profiles (` + userProfileColumns + `)
VALUES (:id, :email, :title, :first_name_given, :last_name, :is_active, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, &profile); err != nil {
			return result, fmt.Errorf("insert user profile: %w", err)
		}
		result.Entity = &profile
		result.Created = true
		return result, nil
	case err != nil:
		return result, fmt.Errorf("lock user profile: %w", err)
	}

	trackField(result.Changes, "last_name", &profile.LastName, fields.LastName)
	trackField(result.Changes, "first_name_given", &profile.FirstNameGiven, fields.FirstNameGiven)
	if fields.SetTitle {
		trackField(result.Changes, "title", &profile.Title, fields.Title)
	}
	result.Entity = &profile
	if !result.Changed() {
		return result, nil
	}

	profile.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE user_profiles SET title = :title, first_name_given = :first_name_given, last_name = :last_name, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, target, updateQuery, &profile); err != nil {
		return result, fmt.Errorf("update user profile: %w", err)
	}
	return result, nil
}
