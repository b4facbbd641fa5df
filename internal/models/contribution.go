package models

import (
	"database/sql"
	"time"
)

// Contribution assigns a contributor to an evaluation. A NULL contributor marks the
// general contribution every evaluation owns.
type Contribution struct {
	ID            string         `db:"id" json:"id"`
	EvaluationID  string         `db:"evaluation_id" json:"evaluation_id"`
	ContributorID sql.NullString `db:"contributor_id" json:"contributor_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// IsGeneral reports whether this is the evaluation's general contribution.
func (c Contribution) IsGeneral() bool {
	return !c.ContributorID.Valid
}
