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

const courseColumns = `id, semester_id, cms_id, name_de, name_en, type_id, created_at, updated_at`

// CourseRepository persists courses and their program and responsible sets.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpdateOrCreate applies fields to the course identified by (semester, cms id), creating it when missing.
func (r *CourseRepository) UpdateOrCreate(ctx context.Context, exec sqlx.ExtContext, semesterID, cmsID string, fields models.CourseFields) (models.UpsertResult[models.Course], error) {
	target := r.exec(exec)
	result := models.UpsertResult[models.Course]{Changes: models.FieldChanges{}}

	var course models.Course
	query := `SELECT ` + courseColumns + ` FROM courses WHERE semester_id = $1 AND cms_id = $2 FOR UPDATE`
	err := sqlx.GetContext(ctx, target, &course, query, semesterID, cmsID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		course = models.Course{
			ID:         uuid.NewString(),
			SemesterID: semesterID,
			CMSID:      cmsID,
			NameDE:     fields.NameDE,
			NameEN:     fields.NameEN,
			TypeID:     fields.TypeID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		const insertQuery = `INSERT INTO courses (` + courseColumns + `)
VALUES (:id, :semester_id, :cms_id, :name_de, :name_en, :type_id, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, &course); err != nil {
			return result, fmt.Errorf("insert course: %w", err)
		}
		result.Entity = &course
		result.Created = true
		return result, nil
	case err != nil:
		return result, fmt.Errorf("lock course: %w", err)
	}

	trackField(result.Changes, "name_de", &course.NameDE, fields.NameDE)
	trackField(result.Changes, "name_en", &course.NameEN, fields.NameEN)
	trackField(result.Changes, "type_id", &course.TypeID, fields.TypeID)
	result.Entity = &course
	if !result.Changed() {
		return result, nil
	}

	course.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE courses SET name_de = :name_de, name_en = :name_en, type_id = :type_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, target, updateQuery, &course); err != nil {
		return result, fmt.Errorf("update course: %w", err)
	}
	return result, nil
}

// ReplacePrograms sets the course's programs to exactly programIDs.
func (r *CourseRepository) ReplacePrograms(ctx context.Context, exec sqlx.ExtContext, courseID string, programIDs []string) (bool, error) {
	return replaceAssociations(ctx, r.exec(exec), "course_programs", "course_id", "program_id", courseID, programIDs)
}

// ReplaceResponsibles sets the course's responsible lecturers to exactly userIDs.
func (r *CourseRepository) ReplaceResponsibles(ctx context.Context, exec sqlx.ExtContext, courseID string, userIDs []string) (bool, error) {
	return replaceAssociations(ctx, r.exec(exec), "course_responsibles", "course_id", "user_profile_id", courseID, userIDs)
}
