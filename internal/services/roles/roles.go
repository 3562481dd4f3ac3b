package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"identity/internal/domain/models"
	"identity/internal/lib/sl"
	"identity/internal/storage"

	"github.com/google/uuid"
)

type Roles struct {
	logger       *slog.Logger
	roleProvider RoleProvider
	roleManager  RoleManager
	membership   MembershipManager
}

type RoleProvider interface {
	Roles(ctx context.Context) ([]models.Role, error)
	RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	RoleByName(ctx context.Context, name string) (*models.Role, error)
	UsersInRole(ctx context.Context, name string) ([]models.User, error)
}

type RoleManager interface {
	SaveRole(ctx context.Context, id uuid.UUID, name string) error
	EnsureRole(ctx context.Context, id uuid.UUID, name string) error
	RenameRole(ctx context.Context, id uuid.UUID, newName string) error
	DeleteRole(ctx context.Context, id uuid.UUID) error
}

type MembershipManager interface {
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error
}

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrRoleProtected     = errors.New("system role cannot be modified")
	ErrUserNotFound      = errors.New("user not found")
	ErrRoleAlreadySet    = errors.New("role already assigned to user")
	ErrRoleNotSet        = errors.New("role not assigned to user")
)

// New returns a new instance of the Roles service.
func New(
	logger *slog.Logger,
	roleProvider RoleProvider,
	roleManager RoleManager,
	membership MembershipManager,
) *Roles {
	return &Roles{
		logger:       logger,
		roleProvider: roleProvider,
		roleManager:  roleManager,
		membership:   membership,
	}
}

// Seed reconciles the reserved roles with the store. Insert-or-ignore
// under the unique name index makes it idempotent and safe to race at
// cold start.
func (r *Roles) Seed(ctx context.Context) error {
	const op = "roles.Seed"
	log := r.logger.With(slog.String("op", op))

	for _, name := range models.ReservedRoles() {
		if err := r.roleManager.EnsureRole(ctx, uuid.New(), name); err != nil {
			log.Error("failed to seed role", slog.String("role", name), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("reserved roles reconciled")
	return nil
}

func (r *Roles) List(ctx context.Context) ([]models.Role, error) {
	const op = "roles.List"

	roles, err := r.roleProvider.Roles(ctx)
	if err != nil {
		r.logger.Error("failed to list roles", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return roles, nil
}

func (r *Roles) Role(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	const op = "roles.Role"

	role, err := r.roleProvider.RoleByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoleNotFound)
		}
		r.logger.Error("failed to get role", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return role, nil
}

func (r *Roles) Create(ctx context.Context, name string) (uuid.UUID, error) {
	const op = "roles.Create"
	log := r.logger.With(slog.String("op", op), slog.String("role", name))

	id := uuid.New()
	if err := r.roleManager.SaveRole(ctx, id, name); err != nil {
		if errors.Is(err, storage.ErrRoleAlreadyExists) {
			log.Warn("role already exists")
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrRoleAlreadyExists)
		}
		log.Error("failed to create role", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("role created", slog.String("roleID", id.String()))
	return id, nil
}

// Rename changes a role's name. Reserved roles keep their names: the
// default-role assignment and the admin gate depend on them.
func (r *Roles) Rename(ctx context.Context, id uuid.UUID, newName string) error {
	const op = "roles.Rename"
	log := r.logger.With(slog.String("op", op), slog.String("roleID", id.String()))

	role, err := r.roleProvider.RoleByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRoleNotFound)
		}
		log.Error("failed to get role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if models.IsReservedRole(role.Name) {
		log.Warn("attempt to rename reserved role", slog.String("role", role.Name))
		return fmt.Errorf("%s: %w", op, ErrRoleProtected)
	}

	if err := r.roleManager.RenameRole(ctx, id, newName); err != nil {
		if errors.Is(err, storage.ErrRoleAlreadyExists) {
			log.Warn("role name already in use", slog.String("newName", newName))
			return fmt.Errorf("%s: %w", op, ErrRoleAlreadyExists)
		}
		log.Error("failed to rename role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("role renamed", slog.String("newName", newName))
	return nil
}

// Delete removes a role. The Admin role is protected.
func (r *Roles) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "roles.Delete"
	log := r.logger.With(slog.String("op", op), slog.String("roleID", id.String()))

	role, err := r.roleProvider.RoleByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRoleNotFound)
		}
		log.Error("failed to get role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if role.Name == models.RoleAdmin {
		log.Warn("attempt to delete Admin role")
		return fmt.Errorf("%s: %w", op, ErrRoleProtected)
	}

	if err := r.roleManager.DeleteRole(ctx, id); err != nil {
		log.Error("failed to delete role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("role deleted", slog.String("role", role.Name))
	return nil
}

func (r *Roles) UsersInRole(ctx context.Context, name string) ([]models.User, error) {
	const op = "roles.UsersInRole"
	log := r.logger.With(slog.String("op", op), slog.String("role", name))

	if _, err := r.roleProvider.RoleByName(ctx, name); err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoleNotFound)
		}
		log.Error("failed to get role", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	users, err := r.roleProvider.UsersInRole(ctx, name)
	if err != nil {
		log.Error("failed to list users in role", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (r *Roles) Assign(ctx context.Context, roleName string, userID uuid.UUID) error {
	const op = "roles.Assign"
	log := r.logger.With(
		slog.String("op", op),
		slog.String("role", roleName),
		slog.String("userID", userID.String()),
	)

	if _, err := r.roleProvider.RoleByName(ctx, roleName); err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return fmt.Errorf("%s: %w", op, ErrRoleNotFound)
		}
		log.Error("failed to get role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.membership.AssignRole(ctx, userID, roleName); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound), errors.Is(err, storage.ErrRoleNotFound):
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		case errors.Is(err, storage.ErrRoleAlreadySet):
			log.Warn("role already assigned")
			return fmt.Errorf("%s: %w", op, ErrRoleAlreadySet)
		}
		log.Error("failed to assign role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("role assigned")
	return nil
}

func (r *Roles) Remove(ctx context.Context, roleName string, userID uuid.UUID) error {
	const op = "roles.Remove"
	log := r.logger.With(
		slog.String("op", op),
		slog.String("role", roleName),
		slog.String("userID", userID.String()),
	)

	if err := r.membership.RemoveRole(ctx, userID, roleName); err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		case errors.Is(err, storage.ErrRoleNotSet):
			log.Warn("role not assigned")
			return fmt.Errorf("%s: %w", op, ErrRoleNotSet)
		}
		log.Error("failed to remove role", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("role removed")
	return nil
}
