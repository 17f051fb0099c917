// Package sqldb opens the relational database behind the swipe ledger.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB is a *sql.DB plus the dialect it speaks.
type DB struct {
	*sql.DB
	Driver string
}

// Option tunes the connection pool.
type Option func(*options)

type options struct {
	maxOpenConns int
}

// WithMaxOpenConns caps the pool. For SQLite the default is one connection;
// more than one needs a file database since shared-cache memory databases
// fail with SQLITE_LOCKED instead of waiting on busy_timeout.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// Open connects to the ledger database and pings it.
// SQLite is opened in WAL mode with immediate transactions and a busy
// timeout, so concurrent writers queue on the write lock.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case DriverPostgres:
		conn, err = sql.Open("pgx", dsn)
	case DriverSQLite:
		conn, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			if o.maxOpenConns <= 0 {
				o.maxOpenConns = 1
			}
			conn.SetMaxOpenConns(o.maxOpenConns)
		}
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	if err == nil && driver == DriverPostgres && o.maxOpenConns > 0 {
		conn.SetMaxOpenConns(o.maxOpenConns)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{DB: conn, Driver: driver}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// Rebind rewrites ? placeholders to $n for postgres. Other dialects pass through.
func (d *DB) Rebind(query string) string {
	return Rebind(d.Driver, query)
}

// Rebind rewrites ? placeholders for the given driver.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
