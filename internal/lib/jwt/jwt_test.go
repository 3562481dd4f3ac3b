package jwt

import (
	"testing"
	"time"

	"identity/internal/domain/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Secret:   "test-secret",
		Issuer:   "identity",
		Audience: "identity-clients",
		TTL:      15 * time.Minute,
	}
}

func testUser() *models.User {
	return &models.User{
		ID:    uuid.New(),
		Email: "user@example.com",
		Roles: []string{models.RoleUser},
	}
}

func TestGenerateAndParse(t *testing.T) {
	opts := testOptions()
	user := testUser()

	token, expiresAt, err := GenerateToken(user, models.RoleUser, opts)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(opts.TTL), expiresAt, 2*time.Second)

	claims, err := ParseToken(token, opts)
	require.NoError(t, err)

	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt, time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	opts := testOptions()
	user := testUser()

	valid, _, err := GenerateToken(user, models.RoleUser, opts)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		opts  Options
	}{
		{
			name:  "garbage",
			token: "not-a-jwt",
			opts:  opts,
		},
		{
			name:  "wrong secret",
			token: valid,
			opts:  Options{Secret: "other-secret", Issuer: opts.Issuer, Audience: opts.Audience, TTL: opts.TTL},
		},
		{
			name:  "wrong issuer",
			token: valid,
			opts:  Options{Secret: opts.Secret, Issuer: "other", Audience: opts.Audience, TTL: opts.TTL},
		},
		{
			name:  "wrong audience",
			token: valid,
			opts:  Options{Secret: opts.Secret, Issuer: opts.Issuer, Audience: "other", TTL: opts.TTL},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	opts := testOptions()
	opts.TTL = -time.Minute

	token, _, err := GenerateToken(testUser(), models.RoleUser, opts)
	require.NoError(t, err)

	_, err = ParseToken(token, testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIDsAreUnique(t *testing.T) {
	opts := testOptions()
	user := testUser()

	first, _, err := GenerateToken(user, models.RoleUser, opts)
	require.NoError(t, err)
	second, _, err := GenerateToken(user, models.RoleUser, opts)
	require.NoError(t, err)

	firstClaims, err := ParseToken(first, opts)
	require.NoError(t, err)
	secondClaims, err := ParseToken(second, opts)
	require.NoError(t, err)

	assert.NotEqual(t, firstClaims.TokenID, secondClaims.TokenID)
}
