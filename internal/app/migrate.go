package app

import (
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/adanyl0v/go-task-tracker/internal/config"
)

func newMigrate() *migrate.Migrate {
	cfg := config.Global().Postgres
	databaseURL := "pgx5://" + strings.TrimPrefix(postgresURL(cfg), "postgres://")

	m, err := migrate.New("file://"+cfg.MigrationsPath, databaseURL)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Str("path", cfg.MigrationsPath).
			Msg("failed to init migrations")
		panic(err)
	}
	return m
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		globalLogger.Warn().
			Err(err).
			Msg("failed to close migrations")
	}
}

func MustMigrateUp() {
	m := newMigrate()
	defer closeMigrate(m)

	err := m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		globalLogger.Error().
			Err(err).
			Msg("failed to apply migrations")
		panic(err)
	}
	logMigrationVersion(m, "applied migrations")
}

// MustMigrateDown rolls back steps migrations, or all of them when steps is
// not positive.
func MustMigrateDown(steps int) {
	m := newMigrate()
	defer closeMigrate(m)

	var err error
	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		globalLogger.Error().
			Err(err).
			Int("steps", steps).
			Msg("failed to roll back migrations")
		panic(err)
	}
	logMigrationVersion(m, "rolled back migrations")
}

func logMigrationVersion(m *migrate.Migrate, msg string) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		globalLogger.Warn().
			Err(err).
			Msg("failed to read migration version")
		return
	}
	globalLogger.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg(msg)
}
