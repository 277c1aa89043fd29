// Package sourcetest provides an in-memory source.Source for tests.
package sourcetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/terminally-online/snowreport/internal/source"
)

type response struct {
	rows  [][]any
	err   error
	block <-chan struct{}
}

// Source answers statements by exact text and arguments. Physical rows are
// projected through the statement's Columns just like a real driver's
// output. Unregistered statements fail.
type Source struct {
	mu        sync.Mutex
	responses map[string]response
	executed  []string
	closed    bool
}

func New() *Source {
	return &Source{responses: make(map[string]response)}
}

// On registers the physical rows returned for stmt.
func (s *Source) On(stmt source.Statement, rows ...[]any) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key(stmt)] = response{rows: rows}
	return s
}

func (s *Source) Fail(stmt source.Statement, err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key(stmt)] = response{err: err}
	return s
}

// Block makes stmt wait until release is closed or the query context ends.
func (s *Source) Block(stmt source.Statement, release <-chan struct{}, rows ...[]any) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key(stmt)] = response{rows: rows, block: release}
	return s
}

func (s *Source) Query(ctx context.Context, stmt source.Statement) (source.Rows, error) {
	s.mu.Lock()
	resp, ok := s.responses[key(stmt)]
	s.executed = append(s.executed, key(stmt))
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected statement: %s", key(stmt))
	}
	if resp.block != nil {
		select {
		case <-resp.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp.err != nil {
		return nil, resp.err
	}

	rows := make([]source.Row, 0, len(resp.rows))
	for _, r := range resp.rows {
		rows = append(rows, source.Project(r, stmt.Columns))
	}
	return &sliceRows{rows: rows}, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Executed returns the statements in the order they were issued.
func (s *Source) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Count returns how many times stmt was issued.
func (s *Source) Count(stmt source.Statement) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, text := range s.executed {
		if text == key(stmt) {
			n++
		}
	}
	return n
}

func key(stmt source.Statement) string {
	if len(stmt.Args) == 0 {
		return stmt.Text
	}
	return fmt.Sprintf("%s %v", stmt.Text, stmt.Args)
}

type sliceRows struct {
	rows []source.Row
	pos  int
}

func (r *sliceRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Row() source.Row { return r.rows[r.pos-1] }

func (r *sliceRows) Err() error { return nil }

func (r *sliceRows) Close() {}
