// Package migrate applies the portal's embedded SQL schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes migrations across portal replicas starting together.
const lockKey int64 = 0x706f7274616c // "portal"

// Migration is one embedded schema file.
type Migration struct {
	Version string
	file    string
}

// State reports whether a migration has been applied.
type State struct {
	Version   string
	AppliedAt *time.Time
}

// Pending reports whether the migration still has to run.
func (s State) Pending() bool { return s.AppliedAt == nil }

// Migrations lists the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), file: e.Name()})
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// Run applies every pending migration. It holds a Postgres advisory lock for the
// duration, so concurrent callers apply each migration once.
func Run(ctx context.Context, db *sql.DB) error {
	logger := slog.Default().With("component", "migrations")

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// Closing conn also releases the lock if this fails.
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey); unlockErr != nil {
			logger.WarnContext(ctx, "release migration lock failed", "error", unlockErr)
		}
	}()

	if err = ensureTable(ctx, conn); err != nil {
		return err
	}
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	applied := 0
	for _, m := range migrations {
		ran, applyErr := apply(ctx, conn, m, logger)
		if applyErr != nil {
			return applyErr
		}
		if ran {
			applied++
		}
	}
	if applied > 0 {
		logger.InfoContext(ctx, "migrations applied", "count", applied)
	}
	return nil
}

// Status returns one entry per embedded migration, in apply order.
func Status(ctx context.Context, db *sql.DB) ([]State, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	appliedAt := map[string]time.Time{}
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		defer rows.Close()
		for rows.Next() {
			var (
				v  string
				at time.Time
			)
			if scanErr := rows.Scan(&v, &at); scanErr != nil {
				return nil, fmt.Errorf("scan schema_migrations: %w", scanErr)
			}
			appliedAt[v] = at
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, fmt.Errorf("read schema_migrations: %w", rowsErr)
		}
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable:
		// Fresh database: nothing applied yet.
	default:
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}

	out := make([]State, 0, len(migrations))
	for _, m := range migrations {
		st := State{Version: m.Version}
		if at, ok := appliedAt[m.Version]; ok {
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func ensureTable(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func apply(ctx context.Context, conn *sql.Conn, m Migration, logger *slog.Logger) (bool, error) {
	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.file, err)
	}
	if exists {
		return false, nil
	}

	body, err := migrationsFS.ReadFile(path.Join("migrations", m.file))
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", m.file, err)
	}
	logger.InfoContext(ctx, "applying migration", "version", m.Version)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback migration failed", "error", rbErr, "version", m.Version)
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", m.file, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.file, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.file, err)
	}
	return true, nil
}
