package domain

import (
	"time"

	"github.com/google/uuid"
)

// Default authority granted to every self-registered account.
const AuthorityUser = "ROLE_USER"

// User represents an account and its lifecycle state.
//
// Login and email are stored normalized (lowercase, trimmed) and are unique
// case-insensitively. ActivationKey is set while the account is pending
// activation and cleared exactly once. ResetKey/ResetDate are set while a
// password reset is outstanding and cleared when the reset completes or is
// superseded by a newer request.
type User struct {
	ID            uuid.UUID
	Login         string
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	LangKey       string
	Activated     bool
	ActivationKey *string
	ResetKey      *string
	ResetDate     *time.Time
	Authorities   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResetKeyValid reports whether the user holds a reset key issued within
// the validity window, measured against now.
func (u *User) ResetKeyValid(window time.Duration, now time.Time) bool {
	if u.ResetKey == nil || u.ResetDate == nil {
		return false
	}
	return u.ResetDate.After(now.Add(-window))
}

// PendingActivation reports whether the account has registered but not yet
// activated.
func (u *User) PendingActivation() bool {
	return !u.Activated && u.ActivationKey != nil
}
