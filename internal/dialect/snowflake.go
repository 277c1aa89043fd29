package dialect

import (
	"fmt"

	"github.com/terminally-online/snowreport/internal/source"
)

// Snowflake reads SHOW output and each database's information_schema.
type Snowflake struct{}

func (Snowflake) Name() string { return "snowflake" }

func (Snowflake) ListDatabases() source.Statement {
	// created_on, name, is_default, ...
	return source.Statement{Text: "show databases", Columns: []int{1}}
}

func (Snowflake) ObjectPrivileges(database string) source.Statement {
	return source.Statement{
		Text: fmt.Sprintf(`select object_catalog, object_schema, object_name, object_type from %s.information_schema.object_privileges where object_type in ('SCHEMA', 'SEQUENCE', 'STREAM', 'PROCEDURE', 'FUNCTION', 'TASK')`,
			QuoteIdent(database)),
	}
}

func (Snowflake) StagesAndPipes(database string) (source.Statement, bool) {
	db := QuoteIdent(database)
	return source.Statement{
		Text: fmt.Sprintf(`select 'STAGE', stage_catalog as catalog, stage_schema as schema, stage_name as name, stage_url as url, stage_region as region, stage_type as type, null as definition, null as is_autoingest_enabled, null as notification_channel from %[1]s.information_schema.stages
union
select 'PIPE', pipe_catalog as catalog, pipe_schema as schema, pipe_name as name, null as url, null as region, null as type, definition, is_autoingest_enabled, notification_channel_name from %[1]s.information_schema.pipes`, db),
	}, true
}

func (Snowflake) ListRoles() source.Statement {
	// created_on, name, is_default, is_current, is_inherited,
	// assigned_to_users, granted_to_roles, granted_roles, owner, comment
	return source.Statement{Text: "show roles", Columns: []int{1, 6}}
}

func (Snowflake) GrantsOfRole(role string) source.Statement {
	// created_on, role, granted_to, grantee_name, granted_by
	return source.Statement{Text: "show grants of role " + QuoteIdent(role), Columns: []int{2, 3}}
}

func (Snowflake) GrantsToRole(role string) source.Statement {
	// created_on, privilege, granted_on, name, granted_to, grantee_name,
	// grant_option, granted_by
	return source.Statement{Text: "show grants to role " + QuoteIdent(role), Columns: []int{1, 2, 3}}
}
