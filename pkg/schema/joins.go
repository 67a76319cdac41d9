package schema

import (
	"fmt"
	"sort"
)

// JoinEdge is one resolved join between two tables.
type JoinEdge struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Kind       string `json:"kind"`
}

// JoinHints is the result of join-path computation over a selected table set.
type JoinHints struct {
	// Joins connects the reachable selected tables, including edges through
	// bridge tables that were not selected.
	Joins []JoinEdge
	// BridgeTables are intermediate tables pulled in by the join paths.
	BridgeTables []string
	// Unreachable lists selected tables with no join path to the rest.
	// Non-empty Unreachable means the joins are incomplete by construction
	// and the plan generator must be told so.
	Unreachable []string
}

// Connected reports whether every selected table was reachable.
func (h *JoinHints) Connected() bool {
	return len(h.Unreachable) == 0
}

// Diagnostic renders the unreachable-tables constraint for prompt context.
func (h *JoinHints) Diagnostic() string {
	if h.Connected() {
		return ""
	}
	return fmt.Sprintf("no valid join path to: %v; ask for clarification or drop these tables", h.Unreachable)
}

// JoinPath computes a minimal set of join edges connecting the selected
// tables, using BFS shortest paths over the relationship graph. Tables that
// cannot be connected are reported explicitly instead of being silently
// dropped.
func (g *Graph) JoinPath(tables []string) *JoinHints {
	hints := &JoinHints{}
	if len(tables) < 2 {
		return hints
	}

	selected := make(map[string]bool, len(tables))
	ordered := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := g.Tables[t]; ok && !selected[t] {
			selected[t] = true
			ordered = append(ordered, t)
		}
	}
	if len(ordered) < 2 {
		return hints
	}

	connected := map[string]bool{ordered[0]: true}
	seenEdge := make(map[string]bool)
	inPath := map[string]bool{ordered[0]: true}

	for _, target := range ordered[1:] {
		if connected[target] {
			continue
		}
		path := g.shortestPathToSet(target, connected)
		if path == nil {
			hints.Unreachable = append(hints.Unreachable, target)
			continue
		}
		// path runs from a connected table to the target.
		for i := 0; i < len(path)-1; i++ {
			e := g.edgeBetween(path[i], path[i+1])
			key := e.FromTable + "." + e.FromColumn + ">" + e.ToTable + "." + e.ToColumn
			if !seenEdge[key] {
				seenEdge[key] = true
				hints.Joins = append(hints.Joins, e)
			}
			inPath[path[i]] = true
			inPath[path[i+1]] = true
			connected[path[i+1]] = true
		}
		connected[target] = true
	}

	for table := range inPath {
		if !selected[table] {
			hints.BridgeTables = append(hints.BridgeTables, table)
		}
	}
	sort.Strings(hints.BridgeTables)
	sort.Strings(hints.Unreachable)
	return hints
}

// shortestPathToSet runs BFS from the target until it reaches any table in
// the connected set, returning the path from that table to the target.
func (g *Graph) shortestPathToSet(target string, connected map[string]bool) []string {
	type node struct {
		name string
		prev *node
	}
	visited := map[string]bool{target: true}
	queue := []*node{{name: target}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if connected[cur.name] {
			// Reverse the chain: connected table first, target last.
			var path []string
			for n := cur; n != nil; n = n.prev {
				path = append(path, n.name)
			}
			return path
		}

		neighbors := make([]string, 0, len(g.adjacency[cur.name]))
		for _, e := range g.adjacency[cur.name] {
			neighbors = append(neighbors, e.to)
		}
		sort.Strings(neighbors) // deterministic traversal order
		for _, next := range neighbors {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, &node{name: next, prev: cur})
			}
		}
	}
	return nil
}

// edgeBetween resolves the relationship joining two adjacent tables,
// oriented from a to b.
func (g *Graph) edgeBetween(a, b string) JoinEdge {
	for _, e := range g.adjacency[a] {
		if e.to != b {
			continue
		}
		rel := e.rel
		if rel.FromTable == a {
			return JoinEdge{
				FromTable: rel.FromTable, FromColumn: rel.FromColumn,
				ToTable: rel.ToTable, ToColumn: rel.ToColumn, Kind: rel.JoinKind,
			}
		}
		// Edge stored in the reverse direction; flip it.
		return JoinEdge{
			FromTable: rel.ToTable, FromColumn: rel.ToColumn,
			ToTable: rel.FromTable, ToColumn: rel.FromColumn, Kind: rel.JoinKind,
		}
	}
	return JoinEdge{}
}

// RelatedTables returns tables directly related to the given table.
func (g *Graph) RelatedTables(table string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.adjacency[table] {
		if !seen[e.to] {
			seen[e.to] = true
			out = append(out, e.to)
		}
	}
	sort.Strings(out)
	return out
}

// RelationshipsTouching returns all relationships involving any of the
// given tables. Used to enrich refinement context after join errors.
func (g *Graph) RelationshipsTouching(tables []string) []Relationship {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	var out []Relationship
	for _, rel := range g.Relationships {
		if set[rel.FromTable] || set[rel.ToTable] {
			out = append(out, rel)
		}
	}
	return out
}
