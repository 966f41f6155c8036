package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies the embedded schema for the given state table.
// Migrations are recorded per table so several tables can share a database.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if err := createMigrationsTable(ctx, pool); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, pool, table)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(migrations)

	for _, path := range migrations {
		name := strings.TrimPrefix(path, "migrations/")
		if applied[name] {
			slog.Debug("migration already applied", "migration", name, "table", table)
			continue
		}

		slog.Info("applying migration", "migration", name, "table", table)

		content, err := migrationFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, renderMigration(string(content), table)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO extrapoints_migrations (name, state_table) VALUES ($1, $2)`, name, table); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}

		slog.Info("migration applied successfully", "migration", name, "table", table)
	}

	return nil
}

// renderMigration substitutes the quoted table name and derived index names
func renderMigration(sql, table string) string {
	out := strings.ReplaceAll(sql, "{{table}}", pq.QuoteIdentifier(table))
	for {
		start := strings.Index(out, "{{index:")
		if start < 0 {
			return out
		}
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			return out
		}
		column := out[start+len("{{index:") : start+end]
		index := pq.QuoteIdentifier(table + "_" + column + "_idx")
		out = out[:start] + index + out[start+end+2:]
	}
}

func createMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS extrapoints_migrations (
			name VARCHAR(255) NOT NULL,
			state_table VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (name, state_table)
		)
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func getAppliedMigrations(ctx context.Context, pool *pgxpool.Pool, table string) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM extrapoints_migrations WHERE state_table = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}

	return applied, rows.Err()
}
