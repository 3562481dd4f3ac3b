package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"identity/internal/app/httpapp"
	"identity/internal/config"
	"identity/internal/domain/models"
	"identity/internal/http/account"
	"identity/internal/http/admin"
	"identity/internal/http/profile"
	jwtlib "identity/internal/lib/jwt"
	"identity/internal/lib/password"
	"identity/internal/services/auth"
	"identity/internal/services/roles"
	"identity/internal/services/users"
	"identity/internal/storage/mongodb"
	"identity/internal/storage/sqlite"

	"github.com/google/uuid"
)

// Storage is the union of persistence operations the services rely on.
// Both the sqlite and mongodb drivers satisfy it.
type Storage interface {
	SaveUser(ctx context.Context, id uuid.UUID, email string, passHash []byte) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Users(ctx context.Context) ([]models.User, error)
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passHash []byte) error
	SetUserLock(ctx context.Context, id uuid.UUID, until *time.Time) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	Roles(ctx context.Context) ([]models.Role, error)
	RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	RoleByName(ctx context.Context, name string) (*models.Role, error)
	SaveRole(ctx context.Context, id uuid.UUID, name string) error
	EnsureRole(ctx context.Context, id uuid.UUID, name string) error
	RenameRole(ctx context.Context, id uuid.UUID, newName string) error
	DeleteRole(ctx context.Context, id uuid.UUID) error
	UsersInRole(ctx context.Context, name string) ([]models.User, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error

	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

type App struct {
	HTTPServer *httpapp.App

	Auth  *auth.Auth
	Users *users.Users
	Roles *roles.Roles

	closeStorage func(context.Context) error
}

// New wires storage, services and the HTTP server. Reserved roles are
// seeded before the server is handed back, so a fresh database is usable
// immediately.
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokenOpts := jwtlib.Options{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.AccessTTL,
	}
	policy := password.PolicyFromConfig(cfg.Password)

	authService := auth.New(
		logger,
		storage,
		storage,
		storage,
		storage,
		tokenOpts,
		cfg.JWT.RefreshTTL,
		cfg.JWT.RefreshPepper,
	)
	usersService := users.New(logger, storage, storage)
	rolesService := roles.New(logger, storage, storage, storage)

	if err := rolesService.Seed(ctx); err != nil {
		_ = closeStorage(ctx)
		return nil, fmt.Errorf("%s: seed roles: %w", op, err)
	}

	accountHandler := account.NewHandler(logger, authService, policy)
	profileHandler := profile.NewHandler(logger, usersService, policy)
	adminUsersHandler := admin.NewUsersHandler(logger, usersService, authService, policy)
	adminRolesHandler := admin.NewRolesHandler(logger, rolesService)

	httpApp := httpapp.New(
		logger,
		cfg,
		accountHandler,
		profileHandler,
		adminUsersHandler,
		adminRolesHandler,
		tokenOpts,
	)

	return &App{
		HTTPServer:   httpApp,
		Auth:         authService,
		Users:        usersService,
		Roles:        rolesService,
		closeStorage: closeStorage,
	}, nil
}

// Stop shuts down the HTTP server and releases the storage handle.
func (a *App) Stop(ctx context.Context) {
	a.HTTPServer.Stop(ctx)
	_ = a.closeStorage(ctx)
}

func openStorage(ctx context.Context, cfg *config.Config) (Storage, func(context.Context) error, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		storage, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return storage, func(context.Context) error { return storage.Close() }, nil
	case config.DriverMongo:
		storage, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
