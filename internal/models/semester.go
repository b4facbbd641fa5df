package models

import "time"

// Semester groups courses imported from one academic-records export.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	NameDE    string    `db:"name_de" json:"name_de"`
	NameEN    string    `db:"name_en" json:"name_en"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
