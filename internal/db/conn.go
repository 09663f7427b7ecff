package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	// database/sql drivers.
	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/SAP/go-hdb/driver"
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/provider"
)

var (
	// ErrDriverNotFound is returned for a driver name with no registration.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrNoConnection is returned when the database cannot be reached.
	ErrNoConnection = errors.New("no connection")
)

// UnknownDriverError is returned when an unknown driver is requested.
type UnknownDriverError struct {
	Driver    string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown driver %q (available: %v)", e.Driver, e.Available)
}

func (e *UnknownDriverError) Unwrap() error { return ErrDriverNotFound }

// ConnectionError wraps a failure to open or ping a database.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting with %s: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrNoConnection, e.Err} }

// Driver knows how to open a provider for one kind of database.
type Driver struct {
	Name    string
	Dialect dialect.ID
	open    func(ctx context.Context, d Driver, cfg *config.Connection) (provider.Provider, error)
}

var drivers = map[string]Driver{
	"postgres":   {Name: "postgres", Dialect: dialect.PostgreSQL, open: openPostgres},
	"redshift":   {Name: "postgres", Dialect: dialect.Redshift, open: openSQL},
	"mysql":      {Name: "mysql", Dialect: dialect.MySQL, open: openSQL},
	"mariadb":    {Name: "mysql", Dialect: dialect.MariaDB, open: openSQL},
	"sqlserver":  {Name: "sqlserver", Dialect: dialect.SQLServer, open: openSQL},
	"hana":       {Name: "hdb", Dialect: dialect.HANA, open: openSQL},
	"clickhouse": {Name: "clickhouse", Dialect: dialect.ClickHouse, open: openSQL},
	"duckdb":     {Name: "duckdb", Dialect: dialect.DuckDB, open: openSQL},
	"sqlite":     {Name: "sqlite", Dialect: dialect.SQLite, open: openSQLite},
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registration for a configured driver name.
func Lookup(name string) (Driver, error) {
	d, ok := drivers[name]
	if !ok {
		return Driver{}, &UnknownDriverError{Driver: name, Available: Drivers()}
	}
	return d, nil
}

// Connect opens and pings the configured database and returns a provider
// for it together with the dialect the driver implies.
func Connect(ctx context.Context, cfg *config.Connection) (provider.Provider, dialect.ID, error) {
	d, err := Lookup(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	p, err := d.open(ctx, d, cfg)
	if err != nil {
		return nil, "", err
	}
	return p, d.Dialect, nil
}

// NewPool creates a new pgx connection pool from config.
func NewPool(ctx context.Context, cfg *config.Connection) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &ConnectionError{Driver: "postgres", Err: fmt.Errorf("creating connection pool: %w", err)}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectionError{Driver: "postgres", Err: fmt.Errorf("pinging database: %w", err)}
	}

	return pool, nil
}

func openPostgres(ctx context.Context, _ Driver, cfg *config.Connection) (provider.Provider, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return provider.NewPostgres(pool), nil
}

// OpenSQL opens a database/sql handle and pings it.
func OpenSQL(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: driverName, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Driver: driverName, Err: fmt.Errorf("pinging database: %w", err)}
	}
	return db, nil
}

func openSQL(ctx context.Context, d Driver, cfg *config.Connection) (provider.Provider, error) {
	db, err := OpenSQL(ctx, d.Name, DSN(cfg))
	if err != nil {
		return nil, err
	}
	return provider.NewSQL(db, d.Dialect), nil
}

func openSQLite(ctx context.Context, d Driver, cfg *config.Connection) (provider.Provider, error) {
	db, err := OpenSQL(ctx, d.Name, DSN(cfg))
	if err != nil {
		return nil, err
	}
	return provider.NewSQLite(db), nil
}
