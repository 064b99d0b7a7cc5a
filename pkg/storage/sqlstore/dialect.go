package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name string

	// driverName is the database/sql driver registered by the import.
	driverName string

	// dollarPlaceholders selects $1, $2, ... instead of ?.
	dollarPlaceholders bool

	// returningID selects INSERT ... RETURNING id over LastInsertId.
	returningID bool

	// quoteChar delimits identifiers.
	quoteChar byte

	// partitionDDL is the CREATE TABLE statement for a response partition,
	// with a single %s for the quoted table name.
	partitionDDL string

	// singleConn limits the pool to one connection.
	singleConn bool

	prepareDSN func(dsn string) (string, error)

	// duplicateObject reports errors that mean a concurrent CREATE ... IF
	// NOT EXISTS won the race.
	duplicateObject func(err error) bool
}

func dialectFor(driver string) (*dialect, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres, "postgresql", "pgx":
		return postgresDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", driver)
}

var postgresDialect = &dialect{
	name:               DriverPostgres,
	driverName:         "pgx",
	dollarPlaceholders: true,
	returningID:        true,
	quoteChar:          '"',
	partitionDDL: `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	nav_index TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	submit_date TIMESTAMPTZ,
	lang VARCHAR(5) NOT NULL,
	user_values TEXT,
	version BIGINT NOT NULL DEFAULT 0
)`,
	prepareDSN: func(dsn string) (string, error) { return dsn, nil },
	duplicateObject: func(err error) bool {
		// Concurrent CREATE TABLE IF NOT EXISTS can still collide on the
		// table's row type in pg_type (23505) or on the relation (42P07).
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "42P07")
	},
}

var sqliteDialect = &dialect{
	name:       DriverSQLite,
	driverName: "sqlite",
	quoteChar:  '"',
	partitionDDL: `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nav_index TEXT NOT NULL,
	start_date TIMESTAMP NOT NULL,
	submit_date TIMESTAMP,
	lang VARCHAR(5) NOT NULL,
	user_values TEXT,
	version INTEGER NOT NULL DEFAULT 0
)`,
	singleConn: true,
	prepareDSN: func(dsn string) (string, error) {
		if dsn == "" {
			dsn = ":memory:"
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		if !strings.Contains(dsn, "busy_timeout") {
			dsn += sep + "_pragma=busy_timeout(5000)"
		}
		return dsn, nil
	},
	duplicateObject: func(error) bool { return false },
}

var mysqlDialect = &dialect{
	name:       DriverMySQL,
	driverName: "mysql",
	quoteChar:  '`',
	partitionDDL: `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	nav_index TEXT NOT NULL,
	start_date DATETIME(6) NOT NULL,
	submit_date DATETIME(6) NULL,
	lang VARCHAR(5) NOT NULL,
	user_values LONGTEXT,
	version BIGINT NOT NULL DEFAULT 0
)`,
	prepareDSN: func(dsn string) (string, error) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// Report matched rows so compare-and-swap updates see 1 even when
		// no column value changed.
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	},
	duplicateObject: func(err error) bool {
		var myErr *mysql.MySQLError
		// ER_TABLE_EXISTS_ERROR
		return errors.As(err, &myErr) && myErr.Number == 1050
	},
}

// placeholder returns the bind marker for the n-th (1-based) parameter.
func (d *dialect) placeholder(n int) string {
	if d.dollarPlaceholders {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// quote delimits an identifier. Callers only pass names produced by
// storage.PartitionName or the fixed column constants.
func (d *dialect) quote(ident string) string {
	q := string(d.quoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
