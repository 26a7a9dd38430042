package domain

import (
	"strings"
	"time"
)

// Role drives authorization. Each user has exactly one.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsAdmin reports whether the role may use the admin API.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is an attendee or operator. Email is the natural key for "same person".
type User struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	PasswordHash    string
	Role            Role
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsVerified reports whether the user confirmed their email address.
func (u *User) IsVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// UserUpdate carries the contact fields reconciliation may overwrite. Nil fields are left alone.
type UserUpdate struct {
	Name  *string
	Phone *string
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail compares two addresses case-insensitively.
func SameEmail(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}
