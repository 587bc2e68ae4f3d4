package supabase

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus is the schema version reported by Migrate.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool // false when the database has no migrations yet
}

// MigrationURL rewrites a postgres:// connection string to the scheme the
// golang-migrate pgx/v5 driver registers.
func MigrationURL(databaseURL string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix), nil
		}
	}
	if strings.HasPrefix(databaseURL, "pgx5://") {
		return databaseURL, nil
	}
	return "", fmt.Errorf("unsupported database URL scheme")
}

// Migrate runs command (up, down or version) against the embedded schema.
// steps > 0 limits up/down to that many migrations.
func Migrate(databaseURL, command string, steps int, logger *zap.Logger) (*MigrationStatus, error) {
	url, err := MigrationURL(databaseURL)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("initialize migrate: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		// reported below
	default:
		return nil, fmt.Errorf("invalid migration command: %s", command)
	}

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no migration changes to apply", zap.String("command", command))
	case err != nil:
		return nil, fmt.Errorf("migration %s failed: %w", command, err)
	case command != "version":
		logger.Info("migration completed", zap.String("command", command), zap.Int("steps", steps))
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return &MigrationStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	return &MigrationStatus{Version: version, Dirty: dirty, Applied: true}, nil
}
