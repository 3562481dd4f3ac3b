package suite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"identity/internal/app"
	"identity/internal/config"
	"identity/internal/domain/models"
	"identity/internal/storage/sqlite"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
)

const (
	jwtSecret     = "test-secret"
	refreshPepper = "test-pepper"
)

type Suite struct {
	*testing.T
	Cfg     *config.Config
	App     *app.App
	Server  *httptest.Server
	Storage *sqlite.Storage
}

// New boots the whole application against a throwaway sqlite database and
// serves it over an in-process HTTP listener.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "identity.db")
	applyMigrations(t, dbPath)

	cfg := testConfig(dbPath)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	application, err := app.New(ctx, logger, cfg)
	if err != nil {
		cancel()
		t.Fatalf("failed to build application: %v", err)
	}

	server := httptest.NewServer(application.HTTPServer.Handler())

	// A second handle onto the same database, for direct fixture setup.
	storage, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite storage: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()
		cancel()
		server.Close()
		_ = storage.Close()

		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		application.Stop(cleanupCtx)
	})

	return ctx, &Suite{
		T:       t,
		Cfg:     cfg,
		App:     application,
		Server:  server,
		Storage: storage,
	}
}

func testConfig(dbPath string) *config.Config {
	return &config.Config{
		Env: "local",
		Storage: config.StorageConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: dbPath,
		},
		HTTP: config.HTTPConfig{
			Address:     "127.0.0.1:0",
			Timeout:     5 * time.Second,
			IdleTimeout: 60 * time.Second,
			CORSOrigins: []string{"*"},
		},
		JWT: config.JWTConfig{
			Secret:        jwtSecret,
			Issuer:        "identity",
			Audience:      "identity-clients",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    168 * time.Hour,
			RefreshPepper: refreshPepper,
		},
		Password: config.PasswordConfig{
			MinLength:     8,
			RequireUpper:  true,
			RequireLower:  true,
			RequireDigit:  true,
			RequireSymbol: true,
		},
	}
}

func applyMigrations(t *testing.T, dbPath string) {
	t.Helper()

	m, err := migrate.New("file://../migrations", "sqlite3://"+dbPath)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

// JWTSecret returns the signing secret the suite configures the app with.
func (s *Suite) JWTSecret() []byte {
	return []byte(jwtSecret)
}

// RegisterAdmin registers a user through the normal flow and promotes it
// to the Admin role via the storage handle.
func (s *Suite) RegisterAdmin(ctx context.Context, email, password string) uuid.UUID {
	s.Helper()

	userID, err := s.App.Auth.Register(ctx, email, password)
	if err != nil {
		s.Fatalf("failed to register admin user: %v", err)
	}
	if err := s.Storage.AssignRole(ctx, userID, models.RoleAdmin); err != nil {
		s.Fatalf("failed to promote admin user: %v", err)
	}
	return userID
}

// PostJSON issues a POST with a JSON body; token is attached as a bearer
// credential when non-empty. The caller owns the response body.
func (s *Suite) PostJSON(path string, body any, token string) *http.Response {
	return s.doJSON(http.MethodPost, path, body, token)
}

func (s *Suite) PutJSON(path string, body any, token string) *http.Response {
	return s.doJSON(http.MethodPut, path, body, token)
}

func (s *Suite) Get(path, token string) *http.Response {
	return s.doJSON(http.MethodGet, path, nil, token)
}

func (s *Suite) Delete(path, token string) *http.Response {
	return s.doJSON(http.MethodDelete, path, nil, token)
}

func (s *Suite) doJSON(method, path string, body any, token string) *http.Response {
	s.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.Server.URL+path, reader)
	if err != nil {
		s.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Server.Client().Do(req)
	if err != nil {
		s.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

// DecodeJSON reads and closes the response body into out.
func (s *Suite) DecodeJSON(resp *http.Response, out any) {
	s.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		s.Fatalf("failed to decode response body: %v", err)
	}
}
