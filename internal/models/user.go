package models

import (
	"strings"
	"time"
)

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleManager     UserRole = "MANAGER"
	RoleReviewer    UserRole = "REVIEWER"
	RoleContributor UserRole = "CONTRIBUTOR"
	RoleStudent     UserRole = "STUDENT"
)

// UserProfile is a person known to the evaluation platform, keyed by normalised email.
type UserProfile struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Title          string    `db:"title" json:"title"`
	FirstNameGiven string    `db:"first_name_given" json:"first_name_given"`
	LastName       string    `db:"last_name" json:"last_name"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// UserProfileFields are the import-managed attributes of a profile.
type UserProfileFields struct {
	FirstNameGiven string
	LastName       string
	// Title is only applied when SetTitle is true; students carry no title.
	Title    string
	SetTitle bool
}

// FullName renders "Title First Last", falling back to the mailbox name.
func (u UserProfile) FullName() string {
	if u.LastName == "" {
		if u.Email == "" {
			return "<unnamed>"
		}
		local, _, _ := strings.Cut(u.Email, "@")
		return local
	}
	parts := make([]string, 0, 3)
	if u.Title != "" {
		parts = append(parts, u.Title)
	}
	if u.FirstNameGiven != "" {
		parts = append(parts, u.FirstNameGiven)
	}
	parts = append(parts, u.LastName)
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer for report lines.
func (u UserProfile) String() string {
	return u.FullName()
}
