// Package sqlsource adapts database/sql to source.Source. It is the path used
// for Snowflake through the gosnowflake driver.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/source"
)

type Source struct {
	db  *sql.DB
	log *zap.Logger
}

// New wraps an open *sql.DB. The pool is shared by every caller, which is
// safe because database/sql hands each concurrent statement its own
// connection.
func New(db *sql.DB, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{db: db, log: log}
}

// SnowflakeConfig carries the connection settings of a Snowflake account.
type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Role      string
}

// SnowflakeDSN renders cfg as a gosnowflake DSN.
func SnowflakeDSN(cfg SnowflakeConfig) (string, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build snowflake dsn: %w", err)
	}
	return dsn, nil
}

// OpenSnowflake connects to Snowflake and verifies the connection.
func OpenSnowflake(ctx context.Context, dsn string, log *zap.Logger) (*Source, error) {
	return Open(ctx, "snowflake", dsn, log)
}

// Open connects with any registered database/sql driver and pings it so that
// authentication problems surface before any report work starts.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Source, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return New(db, log), nil
}

func (s *Source) Query(ctx context.Context, stmt source.Statement) (source.Rows, error) {
	s.log.Debug("executing query", zap.String("sql", stmt.Text))

	rows, err := s.db.QueryContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	return &sqlRows{rows: rows, width: len(cols), columns: stmt.Columns}, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

type sqlRows struct {
	rows    *sql.Rows
	width   int
	columns []int
	current source.Row
	err     error
}

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}

	values := make([]any, r.width)
	ptrs := make([]any, r.width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}

	r.current = source.Project(values, r.columns)
	return true
}

func (r *sqlRows) Row() source.Row {
	return r.current
}

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *sqlRows) Close() {
	_ = r.rows.Close()
}
