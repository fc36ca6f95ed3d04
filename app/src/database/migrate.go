package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"electric-ping/app/src/infra"
)

const defaultMigrationsDir = "app/resources/db/migrations"

// Execer is the subset of *sql.DB used to run migration files.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ResolveMigrationsDir returns the directory containing SQL migrations.
// Configuration wins over the MIGRATIONS_DIR variable, which wins over the
// bundled default.
func ResolveMigrationsDir(cfg infra.Config) string {
	if dir := strings.TrimSpace(cfg.MigrationsDir); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// ApplyMigrations executes the .sql files of dir in lexical order. Every
// file must be safe to run more than once.
func ApplyMigrations(ctx context.Context, db Execer, dir string, logger *infra.Logger) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("migrations directory is not specified")
	}
	if db == nil {
		return errors.New("migrations: db is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations directory %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if len(files) == 0 {
		logger.Printf(ctx, "no migrations found in %s", dir)
		return nil
	}

	for _, name := range files {
		contents, readErr := os.ReadFile(filepath.Join(dir, name))
		if readErr != nil {
			return fmt.Errorf("read migration %q: %w", name, readErr)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, execErr := db.ExecContext(ctx, statements); execErr != nil {
			return fmt.Errorf("apply migration %q: %w", name, execErr)
		}
	}

	logger.Println(ctx, "migrations applied successfully")
	return nil
}
