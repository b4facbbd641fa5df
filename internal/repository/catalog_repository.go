package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-eval-api/internal/models"
)

// CourseTypeRepository resolves course types by their German name.
type CourseTypeRepository struct {
	db *sqlx.DB
}

// NewCourseTypeRepository constructs the repository.
func NewCourseTypeRepository(db *sqlx.DB) *CourseTypeRepository {
	return &CourseTypeRepository{db: db}
}

func (r *CourseTypeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetOrCreateByName returns the course type named name, creating it with name_en = name.
func (r *CourseTypeRepository) GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.CourseType, error) {
	row, err := getOrCreateNamed(ctx, r.exec(exec), "course_types", name)
	if err != nil {
		return nil, err
	}
	return &models.CourseType{ID: row.ID, NameDE: row.NameDE, NameEN: row.NameEN}, nil
}

// ProgramRepository resolves degree programs by their German name.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

func (r *ProgramRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetOrCreateByName returns the program named name, creating it with name_en = name.
func (r *ProgramRepository) GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Program, error) {
	row, err := getOrCreateNamed(ctx, r.exec(exec), "programs", name)
	if err != nil {
		return nil, err
	}
	return &models.Program{ID: row.ID, NameDE: row.NameDE, NameEN: row.NameEN}, nil
}

type namedRow struct {
	ID     string `db:"id"`
	NameDE string `db:"name_de"`
	NameEN string `db:"name_en"`
}

func getOrCreateNamed(ctx context.Context, exec sqlx.ExtContext, table, name string) (namedRow, error) {
	var row namedRow
	selectQuery := fmt.Sprintf(`SELECT id, name_de, name_en FROM %s WHERE name_de = $1`, table)
	err := sqlx.GetContext(ctx, exec, &row, selectQuery, name)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("get %s: %w", table, err)
	}

	row = namedRow{ID: uuid.NewString(), NameDE: name, NameEN: name}
	insertQuery := fmt.Sprintf(`INSERT INTO %s (id, name_de, name_en) VALUES ($1, $2, $3)`, table)
	if _, err := exec.ExecContext(ctx, insertQuery, row.ID, row.NameDE, row.NameEN); err != nil {
		return row, fmt.Errorf("insert %s: %w", table, err)
	}
	return row, nil
}
