package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken represents a refresh token stored in the database. Only the
// SHA-256 hash of the raw token is persisted; the raw value never leaves
// the client after issuance.
type RefreshToken struct {
	ID             uuid.UUID
	TokenHash      string
	UserID         uuid.UUID
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash *string
}

// TokenPair is the result of a successful login or refresh exchange.
// ExpiresAt is the access token expiry.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
