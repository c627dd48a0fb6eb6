// Command migrate applies the SQL migration files in migrations/ in order.
package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"backoffice/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := logger.Setup("info", "console"); err != nil {
		os.Exit(1)
	}
	log := logger.WithComponent("migrate")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list migrations")
	}
	sort.Strings(files)

	for _, f := range files {
		sqlFile, err := os.ReadFile(f)
		if err != nil {
			log.Fatal().Err(err).Str("file", f).Msg("failed to read migration")
		}
		if _, err := pool.Exec(ctx, string(sqlFile)); err != nil {
			log.Fatal().Err(err).Str("file", f).Msg("migration failed")
		}
		log.Info().Str("file", f).Msg("applied migration")
	}
	log.Info().Msg("migrations successful")
}
