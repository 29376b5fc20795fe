package main

import (
	"context"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"gosplit/internal"
	"gosplit/internal/config"
	"gosplit/internal/migration"
)

// Applies the schema migrations and exits. Useful for deploy pipelines that
// migrate before rolling the service.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	internal.ConfigureLogging(cfg.Environment, cfg.Log.Level)

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Str("schema_version", migrator.Version()).Msg("migrations applied")
	os.Exit(0)
}
