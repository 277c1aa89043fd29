// Package source defines the row-oriented query interface the report
// builders consume. Implementations live in the sqlsource and pgsource
// subpackages.
package source

import (
	"context"
	"fmt"
	"strconv"
)

// Statement is a query plus the positions of the columns the caller reads.
// Columns maps logical column i to physical column Columns[i]; a nil slice
// means the two coincide. SHOW-style commands that return fixed positional
// output and plain SELECTs can then be decoded the same way.
type Statement struct {
	Text    string
	Args    []any
	Columns []int
}

func (s Statement) String() string {
	return s.Text
}

type Source interface {
	Query(ctx context.Context, stmt Statement) (Rows, error)
	Close() error
}

// Scoper is implemented by sources that need a distinct connection per
// database to see that database's catalog.
type Scoper interface {
	Scope(ctx context.Context, database string) (Source, error)
}

// ForDatabase returns src scoped to database when src supports scoping and
// src itself otherwise.
func ForDatabase(ctx context.Context, src Source, database string) (Source, error) {
	scoper, ok := src.(Scoper)
	if !ok {
		return src, nil
	}
	scoped, err := scoper.Scope(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to scope source to database %q: %w", database, err)
	}
	return scoped, nil
}

type Rows interface {
	Next() bool
	Row() Row
	Err() error
	Close()
}

// Collect drains rows into memory and closes them.
func Collect(rows Rows) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		out = append(out, rows.Row())
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// Row is one result row addressed by logical column position.
type Row []any

// Project reorders physical values into logical columns.
func Project(values []any, columns []int) Row {
	if columns == nil {
		return Row(values)
	}
	row := make(Row, len(columns))
	for i, c := range columns {
		if c >= 0 && c < len(values) {
			row[i] = values[c]
		}
	}
	return row
}

func (r Row) Len() int {
	return len(r)
}

func (r Row) IsNull(i int) bool {
	return i < 0 || i >= len(r) || r[i] == nil
}

// String returns column i as text, or "" when it is null or missing.
func (r Row) String(i int) string {
	if s := r.NullString(i); s != nil {
		return *s
	}
	return ""
}

func (r Row) NullString(i int) *string {
	if r.IsNull(i) {
		return nil
	}
	var s string
	switch v := r[i].(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return &s
}

func (r Row) Int(i int) (int64, error) {
	if r.IsNull(i) {
		return 0, fmt.Errorf("column %d is null", i)
	}
	switch v := r[i].(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	default:
		return 0, fmt.Errorf("column %d has non-integer type %T", i, v)
	}
}
