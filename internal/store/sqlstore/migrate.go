package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator returns a golang-migrate instance over the embedded migrations
// for driver. The caller must Close it.
func NewMigrator(driver, dsn string) (*migrate.Migrate, error) {
	driver = normalizeDriver(driver)
	var url string
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "salebot.db"
		}
		url = "sqlite://" + dsn
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("SALEBOT_DATABASE_DSN is not set")
		}
		url = pgxURL(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations and reports the resulting version.
func MigrateUp(driver, dsn string) (uint, error) {
	m, err := NewMigrator(driver, dsn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("migrate version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("database is dirty at version %d", v)
	}
	return v, nil
}

// golang-migrate registers its pgx/v5 driver under the pgx5 scheme.
func pgxURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
