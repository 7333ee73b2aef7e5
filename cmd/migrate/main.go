package main

// Applies the embedded order schema migrations. -steps rolls forward or
// back by a number of versions; the default migrates all the way up.

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/matchaleaf/storefront/internal/db"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to apply; negative rolls back")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo})).With("component", "migrate")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.Migrate(ctx, databaseURL, *steps); err != nil {
		logger.Error("migration failed", "error", err, "steps", *steps)
		cancel()
		os.Exit(1)
	}
	logger.Info("migrations applied", "steps", *steps)
}
