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
)

func TestContributionRepositoryGetOrCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewContributionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM contributions WHERE evaluation_id = $1 AND contributor_id = $2")).
		WithArgs("e1", "u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO contributions").
		WithArgs(sqlmock.AnyArg(), "e1", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := repo.GetOrCreate(context.Background(), nil, "e1", "u1")
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.False(t, created.Entity.IsGeneral())

	mock.ExpectQuery(regexp.QuoteMeta("FROM contributions WHERE evaluation_id = $1 AND contributor_id = $2")).
		WithArgs("e1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evaluation_id", "contributor_id", "created_at"}).AddRow("k1", "e1", "u1", time.Now()))

	existing, err := repo.GetOrCreate(context.Background(), nil, "e1", "u1")
	require.NoError(t, err)
	assert.False(t, existing.Created)
	assert.Equal(t, "k1", existing.Entity.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
