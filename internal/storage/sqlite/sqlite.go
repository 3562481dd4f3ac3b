package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"identity/internal/domain/models"
	"identity/internal/storage"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", storagePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- users ---

func (s *Storage) SaveUser(ctx context.Context, id uuid.UUID, email string, passHash []byte) error {
	const op = "storage.sqlite.SaveUser"
	stmt, err := s.db.Prepare("INSERT INTO users (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, id.String(), email, passHash, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) scanUser(ctx context.Context, row *sql.Row, op string) (*models.User, error) {
	var (
		rawID       string
		user        models.User
		lockedUntil sql.NullTime
	)
	err := row.Scan(&rawID, &user.Email, &user.PassHash, &lockedUntil, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		user.LockedUntil = &t
	}
	user.Roles, err = s.userRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, locked_until, created_at FROM users WHERE email = ?", email)
	return s.scanUser(ctx, row, op)
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, locked_until, created_at FROM users WHERE id = ?", id.String())
	return s.scanUser(ctx, row, op)
}

func (s *Storage) Users(ctx context.Context) ([]models.User, error) {
	const op = "storage.sqlite.Users"
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, pass_hash, locked_until, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users, err := collectUsers(rows, op)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Roles, err = s.userRoles(ctx, users[i].ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return users, nil
}

func collectUsers(rows *sql.Rows, op string) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var (
			rawID       string
			user        models.User
			lockedUntil sql.NullTime
		)
		if err := rows.Scan(&rawID, &user.Email, &user.PassHash, &lockedUntil, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user.ID = id
		if lockedUntil.Valid {
			t := lockedUntil.Time
			user.LockedUntil = &t
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (s *Storage) userRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.name FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? ORDER BY r.name`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (s *Storage) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error {
	const op = "storage.sqlite.UpdateUserEmail"
	res, err := s.db.ExecContext(ctx, "UPDATE users SET email = ? WHERE id = ?", email, id.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrUserNotFound)
}

func (s *Storage) UpdateUserPassword(ctx context.Context, id uuid.UUID, passHash []byte) error {
	const op = "storage.sqlite.UpdateUserPassword"
	res, err := s.db.ExecContext(ctx, "UPDATE users SET pass_hash = ? WHERE id = ?", passHash, id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrUserNotFound)
}

func (s *Storage) SetUserLock(ctx context.Context, id uuid.UUID, until *time.Time) error {
	const op = "storage.sqlite.SetUserLock"
	res, err := s.db.ExecContext(ctx, "UPDATE users SET locked_until = ? WHERE id = ?", until, id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrUserNotFound)
}

func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.sqlite.DeleteUser"
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrUserNotFound)
}

func requireRow(res sql.Result, op string, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, missing)
	}
	return nil
}

// --- roles ---

func (s *Storage) Roles(ctx context.Context) ([]models.Role, error) {
	const op = "storage.sqlite.Roles"
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var (
			rawID string
			role  models.Role
		)
		if err := rows.Scan(&rawID, &role.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		role.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return roles, nil
}

func (s *Storage) scanRole(row *sql.Row, op string) (*models.Role, error) {
	var (
		rawID string
		role  models.Role
	)
	err := row.Scan(&rawID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrRoleNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	role.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &role, nil
}

func (s *Storage) RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	const op = "storage.sqlite.RoleByID"
	row := s.db.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE id = ?", id.String())
	return s.scanRole(row, op)
}

func (s *Storage) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	const op = "storage.sqlite.RoleByName"
	row := s.db.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE name = ?", name)
	return s.scanRole(row, op)
}

func (s *Storage) SaveRole(ctx context.Context, id uuid.UUID, name string) error {
	const op = "storage.sqlite.SaveRole"
	_, err := s.db.ExecContext(ctx, "INSERT INTO roles (id, name) VALUES (?, ?)", id.String(), name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EnsureRole inserts the role if it does not exist yet. Safe to call
// concurrently: the unique name index resolves the race.
func (s *Storage) EnsureRole(ctx context.Context, id uuid.UUID, name string) error {
	const op = "storage.sqlite.EnsureRole"
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO roles (id, name) VALUES (?, ?)", id.String(), name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RenameRole(ctx context.Context, id uuid.UUID, newName string) error {
	const op = "storage.sqlite.RenameRole"
	res, err := s.db.ExecContext(ctx, "UPDATE roles SET name = ? WHERE id = ?", newName, id.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrRoleNotFound)
}

func (s *Storage) DeleteRole(ctx context.Context, id uuid.UUID) error {
	const op = "storage.sqlite.DeleteRole"
	res, err := s.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrRoleNotFound)
}

func (s *Storage) UsersInRole(ctx context.Context, name string) ([]models.User, error) {
	const op = "storage.sqlite.UsersInRole"
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.pass_hash, u.locked_until, u.created_at FROM users u
		 JOIN user_roles ur ON ur.user_id = u.id
		 JOIN roles r ON r.id = ur.role_id
		 WHERE r.name = ? ORDER BY u.created_at`, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	return collectUsers(rows, op)
}

func (s *Storage) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.sqlite.AssignRole"
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE name = ?",
		userID.String(), roleName)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleAlreadySet)
		}
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrRoleNotFound)
}

func (s *Storage) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.sqlite.RemoveRole"
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = ? AND role_id = (SELECT id FROM roles WHERE name = ?)",
		userID.String(), roleName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrRoleNotSet)
}

// --- refresh tokens ---

func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.sqlite.SaveRefreshToken"
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID.String(), token.TokenHash, token.UserID.String(), token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"
	row := s.db.QueryRowContext(ctx,
		`SELECT id, token_hash, user_id, created_at, expires_at, revoked_at, replaced_by_hash
		 FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	var (
		rawID     string
		rawUserID string
		token     models.RefreshToken
		revokedAt sql.NullTime
		replaced  sql.NullString
	)
	err := row.Scan(&rawID, &token.TokenHash, &rawUserID, &token.CreatedAt, &token.ExpiresAt, &revokedAt, &replaced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.UserID, err = uuid.Parse(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	if replaced.Valid {
		h := replaced.String
		token.ReplacedByHash = &h
	}
	return &token, nil
}

// RotateRefreshToken revokes the old token and inserts its replacement in
// one transaction. The revocation is conditional on the token not being
// revoked yet, so two concurrent exchanges of the same token produce
// exactly one winner; the loser gets storage.ErrTokenRevoked.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, replaced_by_hash = ?
		 WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), next.TokenHash, oldHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenRevoked)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		next.ID.String(), next.TokenHash, next.UserID.String(), next.CreatedAt, next.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeRefreshToken marks the token revoked without a replacement (logout).
func (s *Storage) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "storage.sqlite.RevokeRefreshToken"
	res, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL",
		time.Now().UTC(), tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(res, op, storage.ErrTokenNotFound)
}
