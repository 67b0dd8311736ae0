package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Schema holds every table the service owns.
const Schema = "alerting"

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// GooseAdapter sends goose output through zerolog.
type GooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) *GooseAdapter {
	return &GooseAdapter{logger: logger.With().Str("component", "goose").Logger()}
}

func (a *GooseAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *GooseAdapter) Fatalf(format string, v ...interface{}) {
	a.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations brings the alerting schema up to date.
func RunMigrations(db *sql.DB, logger zerolog.Logger) error {
	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + Schema); err != nil {
		return errors.Wrapf(err, "create schema %s", Schema)
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(Schema + ".goose_db_version")
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	logger.Info().Str("schema", Schema).Msg("Migrations completed successfully")
	return nil
}
