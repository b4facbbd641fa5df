package models

import "time"

// CourseType is the kind of a course, e.g. a lecture or a seminar.
type CourseType struct {
	ID     string `db:"id" json:"id"`
	NameDE string `db:"name_de" json:"name_de"`
	NameEN string `db:"name_en" json:"name_en"`
}

// Program is a degree program a course is offered for.
type Program struct {
	ID     string `db:"id" json:"id"`
	NameDE string `db:"name_de" json:"name_de"`
	NameEN string `db:"name_en" json:"name_en"`
}

// Course is a single course of a semester, e.g. the Math 101 course of 2024.
type Course struct {
	ID         string    `db:"id" json:"id"`
	SemesterID string    `db:"semester_id" json:"semester_id"`
	CMSID      string    `db:"cms_id" json:"cms_id"`
	NameDE     string    `db:"name_de" json:"name_de"`
	NameEN     string    `db:"name_en" json:"name_en"`
	TypeID     string    `db:"type_id" json:"type_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFields are the import-managed attributes of a course.
type CourseFields struct {
	NameDE string
	NameEN string
	TypeID string
}

// Name prefers the English title.
func (c Course) Name() string {
	if c.NameEN != "" {
		return c.NameEN
	}
	return c.NameDE
}

// String implements fmt.Stringer for report lines.
func (c Course) String() string {
	return c.Name()
}
