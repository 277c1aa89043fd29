package hierarchy

import "go.uber.org/zap"

// Prune removes from the top-level index every role reachable from one of
// roots, so each appears only nested under its ancestors. The roots
// themselves always stay, as do roles no root can reach.
func (g *Graph) Prune(roots ...string) {
	keep := make(map[string]bool, len(roots))
	for _, root := range roots {
		keep[root] = true
	}

	visited := make(map[string]bool)
	for _, root := range roots {
		role, ok := g.roles.Get(root)
		if !ok {
			g.log.Warn("root role not found", zap.String("role", root))
			continue
		}
		g.prune(role, keep, visited)
	}
}

func (g *Graph) prune(role *Role, keep, visited map[string]bool) {
	if visited[role.Name] {
		return
	}
	visited[role.Name] = true

	for _, child := range role.children() {
		if !keep[child.Name] {
			g.roles.Delete(child.Name)
		}
		g.prune(child, keep, visited)
	}
}
