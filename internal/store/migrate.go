package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID keys the advisory lock held while migrations run.
const migrationLockID = 7310842

// Migrate runs all pending SQL migrations in lexicographic order inside one
// transaction. It creates the dq_schema_migrations tracking table if needed,
// then applies any .sql files not yet recorded. The advisory lock is
// transaction scoped, so it is held on the connection running the migrations
// and released at commit or rollback.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "store: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return eris.Wrap(err, "store: acquire migration advisory lock")
		}

		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS dq_schema_migrations (
				id         SERIAL PRIMARY KEY,
				filename   TEXT NOT NULL UNIQUE,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`); err != nil {
			return eris.Wrap(err, "store: ensure migration table")
		}

		applied, err := appliedMigrations(ctx, tx)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			name := entry.Name()
			if applied[name] {
				continue
			}

			data, err := migrationFS.ReadFile("migrations/" + name)
			if err != nil {
				return eris.Wrapf(err, "store: read migration %s", name)
			}

			log.Info("applying migration", zap.String("file", name))

			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return eris.Wrapf(err, "store: apply migration %s", name)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO dq_schema_migrations (filename, applied_at) VALUES ($1, now())",
				name,
			); err != nil {
				return eris.Wrapf(err, "store: record migration %s", name)
			}
		}
		return nil
	})
}

// appliedMigrations returns the set of already-applied migration filenames.
func appliedMigrations(ctx context.Context, q db.Pool) (map[string]bool, error) {
	rows, err := q.Query(ctx, "SELECT filename FROM dq_schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "store: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "store: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
