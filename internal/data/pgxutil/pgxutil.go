// Package pgxutil bridges database/sql handles to native pgx connections.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		// connection close failure is best-effort and ignored
		_ = conn.Close()
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}

// QueryJSON runs a query returning one jsonb value and decodes it with decode.
func QueryJSON(ctx context.Context, db *sql.DB, query string, args []any, decode func([]byte) error) error {
	return WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		var raw []byte
		if err := conn.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
			return err
		}
		return decode(raw)
	})
}
