package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/internal/config"
)

// RunMigrations applies the schema when enabled. Migrations come from
// cfg.Migrations.Path when it exists on disk, otherwise from embedded.
func RunMigrations(cfg *config.Config, embedded fs.FS, logger *zap.Logger) error {
	if cfg == nil || !cfg.Migrations.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	if onDisk(cfg.Migrations.Path) {
		sourceURL := fmt.Sprintf("file://%s", filepath.ToSlash(cfg.Migrations.Path))
		m, err = migrate.NewWithDatabaseInstance(sourceURL, cfg.Database.Name, driver)
	} else {
		var src source.Driver
		src, err = iofs.New(embedded, "migrations")
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, cfg.Database.Name, driver)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := m.Version()
	logger.Info("database migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func onDisk(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
