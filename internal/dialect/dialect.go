// Package dialect holds the catalog SQL for each supported warehouse. Every
// statement is projected onto a fixed set of logical columns so the report
// builders decode all dialects the same way.
package dialect

import (
	"fmt"
	"strings"

	"github.com/terminally-online/snowreport/internal/source"
)

// Logical columns of ObjectPrivileges rows.
const (
	ObjCatalog = iota
	ObjSchema
	ObjName
	ObjType
)

// Logical columns of StagesAndPipes rows.
const (
	SPKind = iota
	SPCatalog
	SPSchema
	SPName
	SPURL
	SPRegion
	SPType
	SPDefinition
	SPAutoIngest
	SPChannel
)

// Logical columns of ListRoles rows.
const (
	RoleName = iota
	RoleGrantedToRoles
)

// Logical columns of GrantsOfRole rows.
const (
	OfGrantedTo = iota
	OfGrantee
)

// Logical columns of GrantsToRole rows.
const (
	ToPrivilege = iota
	ToGrantedOn
	ToName
)

type Dialect interface {
	Name() string
	// ListDatabases yields one row per database: name.
	ListDatabases() source.Statement
	// ObjectPrivileges yields catalog, schema, name, type for every SCHEMA,
	// SEQUENCE, STREAM, PROCEDURE, FUNCTION and TASK in database.
	ObjectPrivileges(database string) source.Statement
	// StagesAndPipes reports false when the warehouse has no such objects.
	StagesAndPipes(database string) (source.Statement, bool)
	ListRoles() source.Statement
	GrantsOfRole(role string) source.Statement
	GrantsToRole(role string) source.Statement
}

func ByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snowflake":
		return Snowflake{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (expected snowflake or postgres)", name)
	}
}

// QuoteIdent double-quotes an identifier, doubling embedded quotes.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SplitQualified splits a two-part name such as DB.SCHEMA. Parts may be
// double-quoted, in which case dots and doubled quotes inside them are
// literal. It reports false unless exactly two non-empty parts are found.
func SplitQualified(name string) (string, string, bool) {
	var parts []string
	var cur strings.Builder
	quoted := false

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '"' && quoted && i+1 < len(name) && name[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			quoted = !quoted
		case c == '.' && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if quoted {
		return "", "", false
	}
	parts = append(parts, cur.String())

	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
