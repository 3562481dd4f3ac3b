package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"identity/internal/domain/models"
	"identity/internal/lib/sl"
	"identity/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// lockDuration is the lockout window applied by an admin lock. Practically
// permanent; unlock clears it explicitly.
const lockDuration = 100 * 365 * 24 * time.Hour

type Users struct {
	logger       *slog.Logger
	userProvider UserProvider
	userManager  UserManager
}

type UserProvider interface {
	UserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Users(ctx context.Context) ([]models.User, error)
}

type UserManager interface {
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passHash []byte) error
	SetUserLock(ctx context.Context, id uuid.UUID, until *time.Time) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrWrongPassword = errors.New("current password does not match")
)

// New returns a new instance of the Users service.
func New(logger *slog.Logger, userProvider UserProvider, userManager UserManager) *Users {
	return &Users{
		logger:       logger,
		userProvider: userProvider,
		userManager:  userManager,
	}
}

func (u *Users) User(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "users.User"
	log := u.logger.With(slog.String("op", op), slog.String("userID", userID.String()))

	user, err := u.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (u *Users) List(ctx context.Context) ([]models.User, error) {
	const op = "users.List"
	log := u.logger.With(slog.String("op", op))

	users, err := u.userProvider.Users(ctx)
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (u *Users) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error {
	const op = "users.UpdateEmail"
	log := u.logger.With(slog.String("op", op), slog.String("userID", userID.String()))

	if err := u.userManager.UpdateUserEmail(ctx, userID, email); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			log.Warn("user not found")
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		case errors.Is(err, storage.ErrUserAlreadyExists):
			log.Warn("email already in use")
			return fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		log.Error("failed to update email", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email updated")
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (u *Users) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	const op = "users.ChangePassword"
	log := u.logger.With(slog.String("op", op), slog.String("userID", userID.String()))

	user, err := u.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(currentPassword)); err != nil {
		log.Warn("current password mismatch")
		return fmt.Errorf("%s: %w", op, ErrWrongPassword)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := u.userManager.UpdateUserPassword(ctx, userID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed")
	return nil
}

// Lock locks the account until now plus the lock duration. Outstanding
// access tokens stay valid until expiry; login is rejected immediately.
func (u *Users) Lock(ctx context.Context, userID uuid.UUID) error {
	const op = "users.Lock"
	until := time.Now().Add(lockDuration).UTC()
	return u.setLock(ctx, op, userID, &until)
}

// Unlock clears the lockout timestamp.
func (u *Users) Unlock(ctx context.Context, userID uuid.UUID) error {
	const op = "users.Unlock"
	return u.setLock(ctx, op, userID, nil)
}

func (u *Users) setLock(ctx context.Context, op string, userID uuid.UUID, until *time.Time) error {
	log := u.logger.With(slog.String("op", op), slog.String("userID", userID.String()))

	if err := u.userManager.SetUserLock(ctx, userID, until); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to set lockout", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("lockout updated", slog.Bool("locked", until != nil))
	return nil
}

func (u *Users) Delete(ctx context.Context, userID uuid.UUID) error {
	const op = "users.Delete"
	log := u.logger.With(slog.String("op", op), slog.String("userID", userID.String()))

	if err := u.userManager.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to delete user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user deleted")
	return nil
}
