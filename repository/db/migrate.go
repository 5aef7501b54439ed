package db

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending up-migration found in migratePath to the
// database at dbDSN. An already up-to-date schema is not an error.
func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" {
		return fmt.Errorf("migration: empty database DSN")
	}
	if migratePath == "" {
		return fmt.Errorf("migration: empty migrations path")
	}
	abs, err := filepath.Abs(migratePath)
	if err != nil {
		return fmt.Errorf("migration: resolve path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return fmt.Errorf("migration: %s is not a directory", abs)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), dbDSN)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}
