// Package hierarchy resolves the role graph: which roles are granted to
// which, the users holding each role, and the database and schema
// privileges granted to it.
package hierarchy

import (
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/logging"
	"github.com/terminally-online/snowreport/internal/registry"
	"github.com/terminally-online/snowreport/internal/report"
)

// Graph indexes every resolved role by name. Child edges point back into
// the same index, so a role granted to several parents is one shared node.
type Graph struct {
	roles *registry.Registry[*Role]
	log   *zap.Logger
}

func NewGraph(log *zap.Logger) *Graph {
	return &Graph{roles: registry.New(newRole), log: logging.OrNop(log)}
}

func (g *Graph) Role(name string) (*Role, bool) {
	return g.roles.Get(name)
}

// Roles returns the names in the top-level index.
func (g *Graph) Roles() []string {
	return g.roles.Keys()
}

func (g *Graph) Len() int {
	return g.roles.Len()
}

type Role struct {
	Name  string
	Users *registry.Set

	// Children references nodes owned by the graph index. Edges are
	// attached with Put only.
	Children  *registry.Registry[*Role]
	Databases *registry.Registry[*DatabaseGrant]
}

func newRole(name string) *Role {
	return &Role{
		Name:      name,
		Users:     registry.NewSet(),
		Children:  registry.NewRefs[*Role](),
		Databases: registry.New(newDatabaseGrant),
	}
}

// children snapshots the child edges so callers can recurse without holding
// the registry lock.
func (r *Role) children() []*Role {
	var out []*Role
	r.Children.Each(func(_ string, c *Role) {
		out = append(out, c)
	})
	return out
}

type DatabaseGrant struct {
	Privileges *registry.Set
	Schemas    *registry.Registry[*registry.Set]
}

func newDatabaseGrant(string) *DatabaseGrant {
	return &DatabaseGrant{
		Privileges: registry.NewSet(),
		Schemas:    registry.New(func(string) *registry.Set { return registry.NewSet() }),
	}
}

// Report renders the top-level index as a forest. Shared children are
// expanded under every parent; a role already on the current path is
// emitted with Cycle set and no children.
func (g *Graph) Report() report.RoleForest {
	out := make(report.RoleForest, g.roles.Len())
	for _, name := range g.roles.Keys() {
		role, ok := g.roles.Get(name)
		if !ok {
			continue
		}
		out[name] = role.report(make(map[string]bool))
	}
	return out
}

func (r *Role) report(path map[string]bool) report.Role {
	out := report.Role{
		Users:      r.Users.Sorted(),
		ChildRoles: map[string]report.Role{},
		Databases:  make(map[string]report.DatabaseGrant, r.Databases.Len()),
	}
	r.Databases.Each(func(name string, d *DatabaseGrant) {
		out.Databases[name] = d.report()
	})

	if path[r.Name] {
		out.Cycle = true
		return out
	}
	path[r.Name] = true
	defer delete(path, r.Name)

	for _, child := range r.children() {
		out.ChildRoles[child.Name] = child.report(path)
	}
	return out
}

func (d *DatabaseGrant) report() report.DatabaseGrant {
	out := report.DatabaseGrant{
		Privileges: d.Privileges.Sorted(),
		Schemas:    make(map[string][]string, d.Schemas.Len()),
	}
	d.Schemas.Each(func(name string, s *registry.Set) {
		out.Schemas[name] = s.Sorted()
	})
	return out
}
