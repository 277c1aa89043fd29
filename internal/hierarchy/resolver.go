package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/dialect"
	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/source"
)

// Resolver walks the grants of every role depth first. It issues one query
// at a time and is not safe for concurrent use.
type Resolver struct {
	src     source.Source
	dialect dialect.Dialect
	log     *zap.Logger
}

func NewResolver(src source.Source, d dialect.Dialect, log *zap.Logger) *Resolver {
	return &Resolver{src: src, dialect: d, log: logging.OrNop(log)}
}

// Build resolves every listed role. A failure to list the roles and a
// cancelled or expired ctx are returned; a role whose grant queries fail is
// logged and left partially populated.
func (r *Resolver) Build(ctx context.Context) (*Graph, error) {
	defer logging.Track(r.log, "role hierarchy")()

	rows, err := r.src.Query(ctx, r.dialect.ListRoles())
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	listed, err := source.Collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	g := NewGraph(r.log)
	for _, row := range listed {
		name := row.String(dialect.RoleName)
		if n, err := row.Int(dialect.RoleGrantedToRoles); err == nil {
			r.log.Debug("listed role", zap.String("role", name), zap.Int64("granted_to_roles", n))
		}
		if ctx.Err() != nil {
			break
		}
		r.resolve(ctx, g, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("role hierarchy cancelled: %w", err)
	}

	r.log.Info("role hierarchy resolved", zap.Int("roles", g.Len()))
	return g, nil
}

func (r *Resolver) resolve(ctx context.Context, g *Graph, name string) *Role {
	// registering before any query keeps cycles from recursing forever
	role, created := g.roles.LoadOrCreate(name)
	if !created {
		return role
	}

	log := r.log.With(zap.String("role", name))
	if err := r.loadGrantsOf(ctx, g, role, log); err != nil {
		log.Error("failed to load grants of role", zap.Error(err))
		return role
	}
	if err := r.loadGrantsTo(ctx, role, log); err != nil {
		log.Error("failed to load grants to role", zap.Error(err))
	}
	return role
}

func (r *Resolver) loadGrantsOf(ctx context.Context, g *Graph, role *Role, log *zap.Logger) error {
	rows, err := r.src.Query(ctx, r.dialect.GrantsOfRole(role.Name))
	if err != nil {
		return err
	}
	// drained before recursing so only one cursor is open per chain
	grants, err := source.Collect(rows)
	if err != nil {
		return err
	}

	for _, row := range grants {
		grantee := row.String(dialect.OfGrantee)
		switch grantedTo := row.String(dialect.OfGrantedTo); {
		case strings.EqualFold(grantedTo, "USER"):
			role.Users.Add(grantee)
		case strings.EqualFold(grantedTo, "ROLE"):
			parent := r.resolve(ctx, g, grantee)
			parent.Children.Put(role.Name, role)
		default:
			log.Debug("skipping grant to unsupported grantee",
				zap.String("granted_to", grantedTo),
				zap.String("grantee", grantee),
			)
		}
	}
	return nil
}

func (r *Resolver) loadGrantsTo(ctx context.Context, role *Role, log *zap.Logger) error {
	rows, err := r.src.Query(ctx, r.dialect.GrantsToRole(role.Name))
	if err != nil {
		return err
	}
	grants, err := source.Collect(rows)
	if err != nil {
		return err
	}

	for _, row := range grants {
		privilege := row.String(dialect.ToPrivilege)
		name := row.String(dialect.ToName)
		switch grantedOn := strings.ToUpper(row.String(dialect.ToGrantedOn)); grantedOn {
		case "DATABASE":
			role.Databases.GetOrCreate(name).Privileges.Add(privilege)
		case "SCHEMA":
			db, schema, ok := dialect.SplitQualified(name)
			if !ok {
				log.Warn("skipping schema grant with unqualified name",
					zap.String("name", name),
					zap.String("privilege", privilege),
				)
				continue
			}
			role.Databases.GetOrCreate(db).Schemas.GetOrCreate(schema).Add(privilege)
		}
	}
	return nil
}
