package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"identity/internal/config"
	"identity/internal/http/account"
	"identity/internal/http/admin"
	"identity/internal/http/middleware"
	"identity/internal/http/profile"
	jwtlib "identity/internal/lib/jwt"
	"identity/internal/lib/sl"

	"identity/internal/domain/models"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type App struct {
	logger  *slog.Logger
	server  *http.Server
	handler http.Handler
	address string
}

func New(
	logger *slog.Logger,
	cfg *config.Config,
	accountHandler *account.Handler,
	profileHandler *profile.Handler,
	adminUsersHandler *admin.UsersHandler,
	adminRolesHandler *admin.RolesHandler,
	tokenOpts jwtlib.Options,
) *App {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	accountHandler.Routes(api.PathPrefix("/account").Subrouter())

	authed := api.PathPrefix("/profile").Subrouter()
	authed.Use(middleware.Authenticate(logger, tokenOpts))
	profileHandler.Routes(authed)

	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(
		middleware.Authenticate(logger, tokenOpts),
		middleware.RequireRole(models.RoleAdmin),
	)
	adminUsersHandler.Routes(adminRouter.PathPrefix("/users").Subrouter())
	adminRolesHandler.Routes(adminRouter.PathPrefix("/roles").Subrouter())

	corsLayer := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := corsLayer.Handler(router)

	return &App{
		logger:  logger,
		handler: handler,
		address: cfg.HTTP.Address,
		server: &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      handler,
			ReadTimeout:  cfg.HTTP.Timeout,
			WriteTimeout: cfg.HTTP.Timeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
	}
}

// Handler exposes the composed routing stack; used by the test suite to
// serve the app in-process.
func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.String("address", a.address),
	)

	log.Info("HTTP server is running")

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Stop(ctx context.Context) {
	const op = "httpapp.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.String("address", a.address))

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
}
