package domain

import (
	"time"
)

// User represents a registered user in the system. Roles carries the names of
// the roles assigned to the user; role membership itself lives in the
// user_roles join table.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	Roles         []string   `json:"roles"`
	RoleIDs       []string   `json:"-"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// UserFilter narrows user listings.
type UserFilter struct {
	Search      string // matches email or name, case-insensitive
	Role        string // role name
	IsActive    *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PerPage     int
}
