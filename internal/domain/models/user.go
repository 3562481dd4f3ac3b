package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account stored in the database. Roles carries the
// names of every role assigned to the user.
type User struct {
	ID          uuid.UUID
	Email       string
	PassHash    []byte
	Roles       []string
	LockedUntil *time.Time
	CreatedAt   time.Time
}

// Locked reports whether the account is locked out at the given moment.
// A nil or past LockedUntil means the account is unlocked.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// PrimaryRole picks the single canonical role embedded into access tokens.
// Admin always wins; otherwise the lexicographically first role name is
// used so the choice is deterministic. Users without any role fall back
// to the default role.
func (u *User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return RoleUser
	}
	primary := u.Roles[0]
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return RoleAdmin
		}
		if r < primary {
			primary = r
		}
	}
	return primary
}
