package models

import "github.com/google/uuid"

// Reserved role names seeded at startup. RoleAdmin cannot be deleted.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// Role represents a named role stored in the database.
type Role struct {
	ID   uuid.UUID
	Name string
}

// ReservedRoles returns the role names the service guarantees to exist.
func ReservedRoles() []string {
	return []string{RoleAdmin, RoleUser}
}

// IsReservedRole reports whether name is one of the system roles.
func IsReservedRole(name string) bool {
	return name == RoleAdmin || name == RoleUser
}
