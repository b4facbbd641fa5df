package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-eval-api/internal/models"
)

// SemesterRepository reads semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindByID loads a semester. sql.ErrNoRows is returned unwrapped when it does not exist.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name_de, name_en, created_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}
