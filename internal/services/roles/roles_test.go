package roles

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"identity/internal/domain/models"
	"identity/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoleStore struct {
	roles       map[uuid.UUID]string
	memberships map[uuid.UUID]map[string]bool
	users       map[uuid.UUID]bool
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles:       make(map[uuid.UUID]string),
		memberships: make(map[uuid.UUID]map[string]bool),
		users:       make(map[uuid.UUID]bool),
	}
}

func (f *fakeRoleStore) Roles(_ context.Context) ([]models.Role, error) {
	out := make([]models.Role, 0, len(f.roles))
	for id, name := range f.roles {
		out = append(out, models.Role{ID: id, Name: name})
	}
	return out, nil
}

func (f *fakeRoleStore) RoleByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	name, ok := f.roles[id]
	if !ok {
		return nil, storage.ErrRoleNotFound
	}
	return &models.Role{ID: id, Name: name}, nil
}

func (f *fakeRoleStore) RoleByName(_ context.Context, name string) (*models.Role, error) {
	for id, n := range f.roles {
		if n == name {
			return &models.Role{ID: id, Name: n}, nil
		}
	}
	return nil, storage.ErrRoleNotFound
}

func (f *fakeRoleStore) UsersInRole(_ context.Context, name string) ([]models.User, error) {
	var out []models.User
	for userID, roles := range f.memberships {
		if roles[name] {
			out = append(out, models.User{ID: userID})
		}
	}
	return out, nil
}

func (f *fakeRoleStore) SaveRole(_ context.Context, id uuid.UUID, name string) error {
	for _, n := range f.roles {
		if n == name {
			return storage.ErrRoleAlreadyExists
		}
	}
	f.roles[id] = name
	return nil
}

func (f *fakeRoleStore) EnsureRole(ctx context.Context, id uuid.UUID, name string) error {
	if err := f.SaveRole(ctx, id, name); err != nil {
		if err == storage.ErrRoleAlreadyExists {
			return nil
		}
		return err
	}
	return nil
}

func (f *fakeRoleStore) RenameRole(_ context.Context, id uuid.UUID, newName string) error {
	if _, ok := f.roles[id]; !ok {
		return storage.ErrRoleNotFound
	}
	for _, n := range f.roles {
		if n == newName {
			return storage.ErrRoleAlreadyExists
		}
	}
	f.roles[id] = newName
	return nil
}

func (f *fakeRoleStore) DeleteRole(_ context.Context, id uuid.UUID) error {
	delete(f.roles, id)
	return nil
}

func (f *fakeRoleStore) AssignRole(_ context.Context, userID uuid.UUID, roleName string) error {
	if !f.users[userID] {
		return storage.ErrUserNotFound
	}
	if f.memberships[userID] == nil {
		f.memberships[userID] = make(map[string]bool)
	}
	if f.memberships[userID][roleName] {
		return storage.ErrRoleAlreadySet
	}
	f.memberships[userID][roleName] = true
	return nil
}

func (f *fakeRoleStore) RemoveRole(_ context.Context, userID uuid.UUID, roleName string) error {
	if !f.users[userID] {
		return storage.ErrUserNotFound
	}
	if !f.memberships[userID][roleName] {
		return storage.ErrRoleNotSet
	}
	delete(f.memberships[userID], roleName)
	return nil
}

func newTestRoles(store *fakeRoleStore) *Roles {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, store, store, store)
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)
	ctx := context.Background()

	require.NoError(t, service.Seed(ctx))
	require.NoError(t, service.Seed(ctx))

	names := make([]string, 0, len(store.roles))
	for _, name := range store.roles {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{models.RoleAdmin, models.RoleUser}, names)
}

func TestCreateDuplicate(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)
	ctx := context.Background()

	_, err := service.Create(ctx, "Auditor")
	require.NoError(t, err)

	_, err = service.Create(ctx, "Auditor")
	require.ErrorIs(t, err, ErrRoleAlreadyExists)
}

func TestRenameProtectsReservedRoles(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)
	ctx := context.Background()

	require.NoError(t, service.Seed(ctx))

	for _, name := range models.ReservedRoles() {
		role, err := service.roleProvider.RoleByName(ctx, name)
		require.NoError(t, err)

		err = service.Rename(ctx, role.ID, "Other")
		require.ErrorIs(t, err, ErrRoleProtected)
	}

	// Custom roles can be renamed.
	id, err := service.Create(ctx, "Auditor")
	require.NoError(t, err)
	require.NoError(t, service.Rename(ctx, id, "Reviewer"))

	renamed, err := service.Role(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", renamed.Name)
}

func TestDeleteProtectsAdminOnly(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)
	ctx := context.Background()

	require.NoError(t, service.Seed(ctx))

	admin, err := service.roleProvider.RoleByName(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.ErrorIs(t, service.Delete(ctx, admin.ID), ErrRoleProtected)

	// The User role is only rename-protected; deletion is allowed.
	user, err := service.roleProvider.RoleByName(ctx, models.RoleUser)
	require.NoError(t, err)
	require.NoError(t, service.Delete(ctx, user.ID))

	require.ErrorIs(t, service.Delete(ctx, uuid.New()), ErrRoleNotFound)
}

func TestAssignAndRemove(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)
	ctx := context.Background()

	userID := uuid.New()
	store.users[userID] = true

	_, err := service.Create(ctx, "Support")
	require.NoError(t, err)

	// Unknown role fails before touching membership.
	require.ErrorIs(t, service.Assign(ctx, "Ghost", userID), ErrRoleNotFound)

	// Unknown user surfaces as such.
	require.ErrorIs(t, service.Assign(ctx, "Support", uuid.New()), ErrUserNotFound)

	require.NoError(t, service.Assign(ctx, "Support", userID))
	require.ErrorIs(t, service.Assign(ctx, "Support", userID), ErrRoleAlreadySet)

	members, err := service.UsersInRole(ctx, "Support")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, userID, members[0].ID)

	require.NoError(t, service.Remove(ctx, "Support", userID))
	require.ErrorIs(t, service.Remove(ctx, "Support", userID), ErrRoleNotSet)
}

func TestUsersInRoleUnknownRole(t *testing.T) {
	store := newFakeRoleStore()
	service := newTestRoles(store)

	_, err := service.UsersInRole(context.Background(), "Ghost")
	require.ErrorIs(t, err, ErrRoleNotFound)
}
