package jwt

import (
	"errors"
	"fmt"
	"time"

	"identity/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Options holds the server-side token parameters. The secret is shared by
// every token the service signs and is read-only after startup.
type Options struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Claims is the validated payload of an access token. Role is a single
// canonical claim value; tokens never carry more than one role.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken creates a signed access token for the user with the given
// primary role and returns it together with its expiry.
func GenerateToken(user *models.User, role string, opts Options) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(opts.TTL)

	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"sub":   user.ID.String(),
			"email": user.Email,
			"role":  role,
			"jti":   uuid.NewString(),
			"iss":   opts.Issuer,
			"aud":   opts.Audience,
			"iat":   now.Unix(),
			"exp":   expiresAt.Unix(),
		})

	signed, err := token.SignedString([]byte(opts.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates the signature, expiry, issuer and audience of an
// access token and returns its claims. Every failure mode collapses into
// ErrInvalidToken; callers must not leak the distinction.
func ParseToken(tokenString string, opts Options) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(opts.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claimsFrom(mapClaims)
}

func claimsFrom(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	email, ok := mc["email"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	role, ok := mc["role"].(string)
	if !ok || role == "" {
		return nil, ErrInvalidToken
	}
	tokenID, ok := mc["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenID:   tokenID,
		ExpiresAt: exp.Time,
	}, nil
}
