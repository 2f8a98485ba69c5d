package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"SealedAuction/internal/observability"
	"SealedAuction/internal/persistence"
	"SealedAuction/internal/projection"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status|rebuild-projections>")
		fmt.Println("  up     - apply all pending migrations")
		fmt.Println("  down   - roll back the last migration")
		fmt.Println("  status - list pending migrations")
		fmt.Println("  rebuild-projections - rederive the read model from the event log (engine stopped)")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  SEALED_POSTGRES_DSN - Postgres connection string")
		fmt.Println("  SEALED_MIGRATIONS   - migrations directory (default: embedded)")
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	pgURL := os.Getenv("SEALED_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/sealedauction?sslmode=disable"
	}

	var files fs.FS
	if dir := os.Getenv("SEALED_MIGRATIONS"); dir != "" {
		files = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, files, logger)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	case "status":
		pending, err := migrator.Pending(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate status")
		}
		if len(pending) == 0 {
			fmt.Println("up to date")
		}
		for _, name := range pending {
			fmt.Println("pending:", name)
		}

	case "rebuild-projections":
		if err := projection.RebuildProjections(ctx, db, logger); err != nil {
			logger.Fatal().Err(err).Msg("rebuild projections")
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down', 'status' or 'rebuild-projections')\n", os.Args[1])
		os.Exit(1)
	}
}
