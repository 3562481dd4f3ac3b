package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"identity/internal/config"
	"identity/internal/domain/models"
	"identity/internal/storage/mongodb"
	"identity/internal/storage/sqlite"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	var configPath string
	var migrationsPath string
	var seedRoles bool
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsPath, "migrations", "migrations", "path to migrations directory")
	flag.BoolVar(&seedRoles, "seed", false, "seed reserved roles into database")
	flag.Parse()

	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/local.yaml"
	}

	cfg := config.LoadConfig(configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		migrateSQLite(ctx, cfg, migrationsPath, seedRoles)
	case config.DriverMongo:
		migrateMongo(ctx, cfg, seedRoles)
	default:
		log.Fatalf("unknown storage driver: %q", cfg.Storage.Driver)
	}

	fmt.Println("Database initialization completed successfully")
}

func migrateSQLite(ctx context.Context, cfg *config.Config, migrationsPath string, seedRoles bool) {
	m, err := migrate.New(
		"file://"+migrationsPath,
		"sqlite3://"+cfg.Storage.SQLitePath,
	)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("no migrations to apply")
		} else {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	} else {
		log.Println("migrations applied")
	}

	if seedRoles {
		storage, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite storage: %v", err)
		}
		defer storage.Close()

		seedReservedRoles(ctx, storage)
	}
}

func migrateMongo(ctx context.Context, cfg *config.Config, seedRoles bool) {
	log.Println("Connecting to MongoDB...")

	storage, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer storage.Close(ctx)

	log.Println("MongoDB connected, indexes created successfully")

	if seedRoles {
		seedReservedRoles(ctx, storage)
	}
}

type roleSeeder interface {
	EnsureRole(ctx context.Context, id uuid.UUID, name string) error
}

func seedReservedRoles(ctx context.Context, storage roleSeeder) {
	for _, name := range models.ReservedRoles() {
		if err := storage.EnsureRole(ctx, uuid.New(), name); err != nil {
			log.Fatalf("failed to seed role %q: %v", name, err)
		}
		log.Printf("role %q present", name)
	}
}
