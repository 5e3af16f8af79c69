package model

import (
	"strings"
	"time"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	StatusPendingVerification UserStatus = "pending_verification"
	StatusActive              UserStatus = "active"
	StatusInactive            UserStatus = "inactive"
	StatusSuspended           UserStatus = "suspended"
	StatusDeleted             UserStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusInactive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// Role is a coarse role tag carried in access tokens.
type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleOrganizationAdmin Role = "organization_admin"
	RoleBranchManager     Role = "branch_manager"
	RoleTeacher           Role = "teacher"
	RoleStudent           Role = "student"
	RoleParent            Role = "parent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrganizationAdmin, RoleBranchManager, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// User is the identity record. PasswordHash is empty for federation-only accounts.
type User struct {
	ID              string     `json:"id" db:"id"`
	Email           string     `json:"email" db:"email"`
	Username        *string    `json:"username,omitempty" db:"username"`
	FirstName       string     `json:"first_name" db:"first_name"`
	LastName        string     `json:"last_name" db:"last_name"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	Roles           []Role     `json:"roles" db:"-"`
	Status          UserStatus `json:"status" db:"status"`
	OrganizationID  *string    `json:"organization_id,omitempty" db:"organization_id"`
	BranchID        *string    `json:"branch_id,omitempty" db:"branch_id"`
	ProfileImageURL *string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	PhoneNumber     *string    `json:"phone_number,omitempty" db:"phone_number"`
	EmailVerified   bool       `json:"email_verified" db:"email_verified"`
	PhoneVerified   bool       `json:"phone_verified" db:"phone_verified"`
	LastLogin       *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the account may log in or refresh.
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// RoleStrings returns the roles as plain strings for claims and storage.
func (u *User) RoleStrings() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, string(r))
	}
	return out
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	c.Username = cloneString(u.Username)
	c.OrganizationID = cloneString(u.OrganizationID)
	c.BranchID = cloneString(u.BranchID)
	c.ProfileImageURL = cloneString(u.ProfileImageURL)
	c.PhoneNumber = cloneString(u.PhoneNumber)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// NormalizeEmail lower-cases and trims an email address. Stores and the engine
// compare emails only in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims a username; empty results mean "no username".
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
