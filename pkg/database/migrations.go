package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migration is one versioned schema step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

const migrationTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyMigrations runs every migration not yet recorded in schema_migrations, each in
// its own transaction, and returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sqlx.DB, migrations []Migration, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, migrationTable); err != nil {
		return nil, fmt.Errorf("create migration table: %w", err)
	}

	var done []string
	if err := db.SelectContext(ctx, &done, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	seen := make(map[string]struct{}, len(done))
	for _, v := range done {
		seen[v] = struct{}{}
	}

	ordered := append([]Migration(nil), migrations...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	var applied []string
	for _, m := range ordered {
		if _, ok := seen[m.Version]; ok {
			continue
		}
		err := WithTx(ctx, db, nil, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		logger.Info("schema migration applied", zap.String("version", m.Version), zap.String("description", m.Description))
		applied = append(applied, m.Version)
	}
	return applied, nil
}
