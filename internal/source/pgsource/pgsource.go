// Package pgsource reads Postgres catalogs through pgx. Postgres only exposes
// a database's catalog to connections made to that database, so the source
// keeps one pool per database and implements source.Scoper.
package pgsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/source"
)

type Source struct {
	cfg  *pgxpool.Config
	pool *pgxpool.Pool
	log  *zap.Logger

	mu     sync.Mutex
	scoped map[string]*Source
	parent *Source
}

func Open(ctx context.Context, databaseURL string, log *zap.Logger) (*Source, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Source{
		cfg:    cfg,
		pool:   pool,
		log:    log,
		scoped: make(map[string]*Source),
	}, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database %q: %w", cfg.ConnConfig.Database, err)
	}
	return pool, nil
}

// Database returns the name of the database this source is connected to.
func (s *Source) Database() string {
	return s.cfg.ConnConfig.Database
}

// Scope returns a source connected to database. Scoped sources are cached and
// closed together with the source they were derived from.
func (s *Source) Scope(ctx context.Context, database string) (source.Source, error) {
	root := s
	if s.parent != nil {
		root = s.parent
	}
	if database == root.Database() {
		return root, nil
	}

	root.mu.Lock()
	scoped, ok := root.scoped[database]
	root.mu.Unlock()
	if ok {
		return scoped, nil
	}

	// connect outside the lock; a concurrent caller may win the insert below
	cfg := root.cfg.Copy()
	cfg.ConnConfig.Database = database
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	root.mu.Lock()
	defer root.mu.Unlock()

	if existing, ok := root.scoped[database]; ok {
		pool.Close()
		return existing, nil
	}
	scoped = &Source{
		cfg:    cfg,
		pool:   pool,
		log:    root.log.With(zap.String("database", database)),
		parent: root,
	}
	root.scoped[database] = scoped
	return scoped, nil
}

func (s *Source) Query(ctx context.Context, stmt source.Statement) (source.Rows, error) {
	s.log.Debug("executing query", zap.String("sql", stmt.Text), zap.Any("args", stmt.Args))

	rows, err := s.pool.Query(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return &pgRows{rows: rows, columns: stmt.Columns}, nil
}

// Close closes the pool and, for a root source, every scoped pool.
func (s *Source) Close() error {
	if s.parent != nil {
		// owned by the root source
		return nil
	}

	s.mu.Lock()
	scoped := s.scoped
	s.scoped = make(map[string]*Source)
	s.mu.Unlock()

	for _, sc := range scoped {
		sc.pool.Close()
	}
	s.pool.Close()
	return nil
}

type pgRows struct {
	rows    pgx.Rows
	columns []int
	current source.Row
	err     error
}

func (r *pgRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	values, err := r.rows.Values()
	if err != nil {
		r.err = fmt.Errorf("failed to read row: %w", err)
		return false
	}
	r.current = source.Project(values, r.columns)
	return true
}

func (r *pgRows) Row() source.Row {
	return r.current
}

func (r *pgRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *pgRows) Close() {
	r.rows.Close()
}
