package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"identity/internal/domain/models"
	"identity/internal/lib/jwt"
	"identity/internal/lib/sl"
	"identity/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Auth struct {
	logger        *slog.Logger
	userSaver     UserSaver
	userProvider  UserProvider
	roleAssigner  RoleAssigner
	tokenProvider RefreshTokenProvider
	tokenOpts     jwt.Options
	refreshTTL    time.Duration
	refreshPepper string
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		id uuid.UUID,
		email string,
		passHash []byte,
	) error
}

type UserProvider interface {
	UserByEmail(
		ctx context.Context,
		email string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID uuid.UUID,
	) (user *models.User, err error)
}

type RoleAssigner interface {
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
}

type RefreshTokenProvider interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserAlreadyExists      = errors.New("user already exists")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrRefreshTokenExpired    = errors.New("refresh token expired")
	ErrRefreshTokenRevoked    = errors.New("refresh token revoked")
	ErrDefaultRoleNotAssigned = errors.New("user created but default role not assigned")
)

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	roleAssigner RoleAssigner,
	tokenProvider RefreshTokenProvider,
	tokenOpts jwt.Options,
	refreshTTL time.Duration,
	refreshPepper string,
) *Auth {
	return &Auth{
		logger:        logger,
		userSaver:     userSaver,
		userProvider:  userProvider,
		roleAssigner:  roleAssigner,
		tokenProvider: tokenProvider,
		tokenOpts:     tokenOpts,
		refreshTTL:    refreshTTL,
		refreshPepper: refreshPepper,
	}
}

// Register creates a user and assigns the default role. When the user is
// created but the role assignment fails, the user ID is returned together
// with ErrDefaultRoleNotAssigned so the caller can distinguish the partial
// result from both full success and full failure.
func (a *Auth) Register(
	ctx context.Context,
	email string,
	password string,
) (userID uuid.UUID, err error) {
	const op = "auth.Register"
	log := a.logger.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	log.Info("register request")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	userID = uuid.New()
	if err := a.userSaver.SaveUser(ctx, userID, email, passHash); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.roleAssigner.AssignRole(ctx, userID, models.RoleUser); err != nil {
		log.Error("failed to assign default role", sl.Err(err), slog.String("userID", userID.String()))
		return userID, fmt.Errorf("%s: %w", op, ErrDefaultRoleNotAssigned)
	}

	log.Info("user registered", slog.String("userID", userID.String()))

	return userID, nil
}

// Login authenticates the user and returns an access/refresh token pair.
// Unknown email, wrong password and locked account all collapse into
// ErrInvalidCredentials so callers cannot enumerate accounts.
func (a *Auth) Login(
	ctx context.Context,
	email string,
	password string,
) (*models.TokenPair, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("email", email))

	user, err := a.userProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Locked(time.Now()) {
		log.Warn("account is locked", slog.String("userID", user.ID.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := a.issueTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID.String()))

	return pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair (rotation).
// The presented token is revoked first; the user's roles are re-read from
// storage so role changes since the last login take effect immediately.
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
) (*models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	tokenHash := a.hashRefreshToken(refreshToken)

	tokenDoc, err := a.tokenProvider.RefreshToken(ctx, tokenHash)
	if err != nil {
		log.Warn("refresh token not found", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	if tokenDoc.RevokedAt != nil {
		log.Warn("refresh token already revoked")
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
	}

	if time.Now().After(tokenDoc.ExpiresAt) {
		log.Warn("refresh token expired")
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	user, err := a.userProvider.UserByID(ctx, tokenDoc.UserID)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	newRaw, err := generateRefreshTokenRaw()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := &models.RefreshToken{
		ID:        uuid.New(),
		TokenHash: a.hashRefreshToken(newRaw),
		UserID:    tokenDoc.UserID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().Add(a.refreshTTL).UTC(),
	}

	// Conditional rotation: of two concurrent exchanges of the same token
	// exactly one passes, the other sees ErrTokenRevoked.
	if err := a.tokenProvider.RotateRefreshToken(ctx, tokenHash, next); err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) {
			log.Warn("lost rotation race, token already revoked")
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, expiresAt, err := jwt.GenerateToken(user, user.PrimaryRole(), a.tokenOpts)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.String("userID", user.ID.String()))

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRaw,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout revokes the presented refresh token. Unknown or already revoked
// tokens are treated as success so logout stays idempotent.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))

	tokenHash := a.hashRefreshToken(refreshToken)
	if err := a.tokenProvider.RevokeRefreshToken(ctx, tokenHash); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenRevoked) {
			log.Info("logout with unknown or revoked token")
			return nil
		}
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token revoked")
	return nil
}

// issueTokens mints a signed access token and a persisted refresh token.
// Nothing is returned unless the refresh token row is durably recorded.
func (a *Auth) issueTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	accessToken, expiresAt, err := jwt.GenerateToken(user, user.PrimaryRole(), a.tokenOpts)
	if err != nil {
		return nil, err
	}

	rawToken, err := generateRefreshTokenRaw()
	if err != nil {
		return nil, err
	}

	token := &models.RefreshToken{
		ID:        uuid.New(),
		TokenHash: a.hashRefreshToken(rawToken),
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().Add(a.refreshTTL).UTC(),
	}
	if err := a.tokenProvider.SaveRefreshToken(ctx, token); err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// hashRefreshToken computes SHA-256 hash of the token with pepper.
func (a *Auth) hashRefreshToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token + a.refreshPepper))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// generateRefreshTokenRaw generates a cryptographically secure random token.
func generateRefreshTokenRaw() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
