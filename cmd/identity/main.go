package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity/internal/app"
	"identity/internal/config"
	"identity/internal/lib/handlers/slogpretty"
	"identity/internal/lib/sl"

	"github.com/joho/godotenv"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)
	logger.Info("starting identity server", slog.String("env", cfg.Env))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, logger, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to initialize application", sl.Err(err))
		os.Exit(1)
	}

	go application.HTTPServer.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	application.Stop(shutdownCtx)

	logger.Info("shutting down identity server")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		panic("unknown environment: " + env)
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
