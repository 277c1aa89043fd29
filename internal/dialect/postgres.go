package dialect

import (
	"github.com/terminally-online/snowreport/internal/source"
)

// Postgres emulates the Snowflake report queries on pg_catalog. Object and
// schema-grant queries only see the connected database, so it expects a
// source that implements source.Scoper. Postgres has no streams, tasks,
// stages or pipes.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) ListDatabases() source.Statement {
	return source.Statement{Text: `
		SELECT datname
		FROM pg_database
		WHERE datallowconn AND NOT datistemplate
		ORDER BY datname
	`}
}

func (Postgres) ObjectPrivileges(string) source.Statement {
	return source.Statement{Text: `
		SELECT current_database(), n.nspname, n.nspname, 'SCHEMA'
		FROM pg_namespace n
		WHERE n.nspname NOT LIKE 'pg\_%'
		AND n.nspname <> 'information_schema'

		UNION ALL

		SELECT current_database(), n.nspname, c.relname, 'SEQUENCE'
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'S'
		AND n.nspname NOT LIKE 'pg\_%'
		AND n.nspname <> 'information_schema'

		UNION ALL

		SELECT current_database(), n.nspname, p.proname,
			CASE p.prokind WHEN 'p' THEN 'PROCEDURE' ELSE 'FUNCTION' END
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE p.prokind IN ('f', 'p')
		AND n.nspname NOT LIKE 'pg\_%'
		AND n.nspname <> 'information_schema'
		AND NOT EXISTS (
			SELECT 1 FROM pg_depend d
			WHERE d.objid = p.oid AND d.deptype = 'e'
		)
	`}
}

func (Postgres) StagesAndPipes(string) (source.Statement, bool) {
	return source.Statement{}, false
}

func (Postgres) ListRoles() source.Statement {
	return source.Statement{Text: `
		SELECT
			r.rolname,
			(SELECT count(*) FROM pg_auth_members am WHERE am.member = r.oid)
		FROM pg_roles r
		WHERE r.rolname NOT LIKE 'pg\_%'
		ORDER BY r.rolname
	`}
}

// GrantsOfRole lists the members of role. Members that can log in are
// reported as users.
func (Postgres) GrantsOfRole(role string) source.Statement {
	return source.Statement{
		Text: `
		SELECT
			CASE WHEN m.rolcanlogin THEN 'USER' ELSE 'ROLE' END,
			m.rolname
		FROM pg_auth_members am
		JOIN pg_roles r ON r.oid = am.roleid
		JOIN pg_roles m ON m.oid = am.member
		WHERE r.rolname = $1
		ORDER BY m.rolname
	`,
		Args: []any{role},
	}
}

func (Postgres) GrantsToRole(role string) source.Statement {
	return source.Statement{
		Text: `
		SELECT a.privilege_type, 'DATABASE', d.datname::text
		FROM pg_database d
		CROSS JOIN LATERAL aclexplode(d.datacl) a
		JOIN pg_roles g ON g.oid = a.grantee
		WHERE g.rolname = $1

		UNION ALL

		SELECT a.privilege_type, 'SCHEMA',
			quote_ident(current_database()) || '.' || quote_ident(n.nspname)
		FROM pg_namespace n
		CROSS JOIN LATERAL aclexplode(n.nspacl) a
		JOIN pg_roles g ON g.oid = a.grantee
		WHERE g.rolname = $1
		ORDER BY 1, 2, 3
	`,
		Args: []any{role},
	}
}
