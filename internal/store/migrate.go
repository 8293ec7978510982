package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nis-portal/portal-api/internal/logging"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationDB is the subset of a pool the migration runner needs.
type MigrationDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate applies the embedded migrations in file name order. Each file runs
// in its own transaction and is recorded in schema_migrations, so reruns
// skip what is already applied. It returns the names applied by this call.
func Migrate(ctx context.Context, db MigrationDB) ([]string, error) {
	return runMigrations(ctx, db, embeddedMigrations, "migrations", logging.Logger.Named("migrations"))
}

func runMigrations(ctx context.Context, db MigrationDB, fsys fs.FS, dir string, logger *logging.SafeLogger) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	applied := []string{}
	for _, file := range files {
		name := path.Base(file)

		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&exists); err != nil {
			return applied, fmt.Errorf("migration lookup: %w", err)
		}
		if exists {
			continue
		}

		sqlBytes, err := fs.ReadFile(fsys, file)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin(ctx)
		if err != nil {
			return applied, fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(filename) VALUES($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("mark migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", name, err)
		}

		applied = append(applied, name)
		logger.Info("applied migration", zap.String("file", name))
	}

	logger.Info("migrations complete",
		zap.Int("available", len(files)),
		zap.Int("applied", len(applied)))
	return applied, nil
}
