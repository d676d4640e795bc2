package main

import (
	"context"
	"database/sql"
	"fmt"
	"food-dispatch-service/internal/adapters/repositories"
	"food-dispatch-service/internal/config"
	"food-dispatch-service/internal/platform/db"
	"food-dispatch-service/internal/platform/logger"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()

	log, err := logger.New(config.Get("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(context.Background(), databaseURL)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	seedPath := config.Get("SEED_PATH", "data/seeds/drivers.json")
	if err := initAndSeed(conn, seedPath, log); err != nil {
		log.Fatal("database setup failed", zap.Error(err))
	}
}

func initAndSeed(conn *sql.DB, seedPath string, log *zap.Logger) error {
	log.Info("initializing database schema")
	if err := repositories.InitSchema(conn); err != nil {
		return fmt.Errorf("schema initialization: %w", err)
	}
	log.Info("schema ready")

	log.Info("seeding drivers", zap.String("path", seedPath))
	if err := repositories.SeedDriversFromJSON(conn, seedPath); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}
	log.Info("seeding complete")

	return nil
}
