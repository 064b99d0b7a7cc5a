// Package sqlstore is the relational storage backend. It keeps one response
// table per survey plus the surveys metadata table, and runs on PostgreSQL
// (pgx), SQLite (modernc.org/sqlite) or MySQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rhuss/umfrage/pkg/codec"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/observability"
)

// DB is a connection pool bound to one SQL dialect.
type DB struct {
	sql     *sql.DB
	dialect *dialect
	codec   codec.Codec
}

// Open connects to the database described by cfg and verifies the
// connection. If MigrateOnStart is true, schema migrations are applied.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg.defaults()

	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := d.prepareDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	sqlDB, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.name, err)
	}
	if d.singleConn {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		// An in-memory database lives only as long as its connection.
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := &DB{sql: sqlDB, dialect: d, codec: codec.JSON{}}

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return db, nil
}

// Driver returns the name of the dialect in use.
func (db *DB) Driver() string {
	return db.dialect.name
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// exec runs a statement and records it under op.
func (db *DB) exec(ctx context.Context, op, stmt string, args ...any) (sql.Result, error) {
	db.logStatement(op, stmt)
	start := time.Now()
	res, err := db.sql.ExecContext(ctx, stmt, args...)
	observability.ObserveStoreOperation(op, start, err)
	return res, err
}

// query runs a query and records it under op. The caller closes the rows.
func (db *DB) query(ctx context.Context, op, stmt string, args ...any) (*sql.Rows, error) {
	db.logStatement(op, stmt)
	start := time.Now()
	rows, err := db.sql.QueryContext(ctx, stmt, args...)
	observability.ObserveStoreOperation(op, start, err)
	return rows, err
}

// queryRow runs a single-row query and scans it into dest.
func (db *DB) queryRow(ctx context.Context, op, stmt string, args []any, dest ...any) error {
	db.logStatement(op, stmt)
	start := time.Now()
	err := db.sql.QueryRowContext(ctx, stmt, args...).Scan(dest...)
	if err == sql.ErrNoRows {
		observability.ObserveStoreOperation(op, start, nil)
	} else {
		observability.ObserveStoreOperation(op, start, err)
	}
	return err
}

// logStatement logs statement text only; bound values may carry answers.
func (db *DB) logStatement(op, stmt string) {
	if debug.TraceEnabled("storage") {
		debug.Trace("storage", "statement", "op", op, "driver", db.dialect.name, "sql", stmt)
		return
	}
	debug.Log("storage", "statement", "op", op, "driver", db.dialect.name, "sql", debug.Truncate(stmt, 160))
}
