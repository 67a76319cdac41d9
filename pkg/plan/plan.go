// Package plan defines the intermediate query plan produced between table
// ranking and SQL synthesis, with parsing from completion output and
// validation against the schema graph.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

// Join is one planned join edge.
type Join struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Kind       string `json:"kind,omitempty"`
}

// Plan is the structured query plan the synthesizer works from. It may only
// reference entities present in the schema graph; Validate enforces that
// before synthesis proceeds.
type Plan struct {
	Tables             []string            `json:"tables"`
	Columns            map[string][]string `json:"columns"`
	Joins              []Join              `json:"joins"`
	Filters            []string            `json:"filters"`
	NeedsScoping       bool                `json:"needs_scoping"`
	ScopingColumnsUsed []string            `json:"scoping_columns_used"`
}

// Parse extracts a Plan from raw completion output. The output may wrap the
// JSON in think tags, code fences, or prose.
func Parse(response string) (*Plan, error) {
	p, err := llm.ParseJSONResponse[*Plan](response)
	if err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("parsing plan: empty document")
	}
	if len(p.Tables) == 0 {
		return nil, fmt.Errorf("parsing plan: no tables")
	}
	p.normalize()
	return p, nil
}

// normalize dedups tables preserving order and defaults join kinds.
func (p *Plan) normalize() {
	seen := make(map[string]bool, len(p.Tables))
	tables := p.Tables[:0]
	for _, t := range p.Tables {
		t = strings.TrimSpace(t)
		if t != "" && !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}
	p.Tables = tables

	for i := range p.Joins {
		if p.Joins[i].Kind == "" {
			p.Joins[i].Kind = "INNER"
		}
	}
}

// HasTable reports whether the plan includes the table.
func (p *Plan) HasTable(name string) bool {
	for _, t := range p.Tables {
		if t == name {
			return true
		}
	}
	return false
}

// Issue is one plan-validation finding. Plan issues are refinable: they feed
// the retry loop rather than failing the request outright.
type Issue struct {
	Message string `json:"message"`
	Table   string `json:"table,omitempty"`
	Column  string `json:"column,omitempty"`
}

func (i Issue) String() string {
	return i.Message
}

// Validate checks the plan against the schema graph and the join hints
// computed for its table set: every table and column must exist, every join
// must correspond to a real relationship, and a plan flagged as needing
// scoping must name the scoping columns it uses.
func Validate(p *Plan, g *schema.Graph, hints *schema.JoinHints, needsScoping bool) []Issue {
	var issues []Issue

	for _, name := range p.Tables {
		if _, ok := g.Tables[name]; !ok {
			issues = append(issues, Issue{
				Message: fmt.Sprintf("plan references unknown table %q", name),
				Table:   name,
			})
		}
	}

	for table, cols := range p.Columns {
		t, ok := g.Tables[table]
		if !ok {
			issues = append(issues, Issue{
				Message: fmt.Sprintf("plan selects columns from unknown table %q", table),
				Table:   table,
			})
			continue
		}
		for _, col := range cols {
			if col == "*" {
				continue
			}
			if !t.HasColumn(col) {
				issues = append(issues, Issue{
					Message: fmt.Sprintf("plan references unknown column %s.%s", table, col),
					Table:   table,
					Column:  col,
				})
			}
		}
	}

	allowed := allowedJoins(hints)
	for _, j := range p.Joins {
		if !joinExists(g, j) {
			issues = append(issues, Issue{
				Message: fmt.Sprintf("plan join %s.%s -> %s.%s does not match any schema relationship",
					j.FromTable, j.FromColumn, j.ToTable, j.ToColumn),
				Table: j.FromTable,
			})
			continue
		}
		if len(allowed) > 0 && !allowed[joinKey(j)] {
			issues = append(issues, Issue{
				Message: fmt.Sprintf("plan join %s.%s -> %s.%s is outside the hinted join paths",
					j.FromTable, j.FromColumn, j.ToTable, j.ToColumn),
				Table: j.FromTable,
			})
		}
	}

	if needsScoping {
		if !p.NeedsScoping {
			issues = append(issues, Issue{
				Message: "plan must set needs_scoping for this request",
			})
		}
		if len(p.ScopingColumnsUsed) == 0 {
			issues = append(issues, Issue{
				Message: "plan requires scoping but names no scoping columns",
			})
		}
	}

	return issues
}

// Repair fills structural gaps additively: missing joins are synthesized
// from the hinted join paths and bridge tables are pulled into the table
// list. Repair never removes anything the generator produced.
func Repair(p *Plan, hints *schema.JoinHints) {
	if hints == nil {
		return
	}

	have := make(map[string]bool, len(p.Joins))
	for _, j := range p.Joins {
		have[joinKey(j)] = true
	}
	for _, e := range hints.Joins {
		j := Join{
			FromTable: e.FromTable, FromColumn: e.FromColumn,
			ToTable: e.ToTable, ToColumn: e.ToColumn, Kind: e.Kind,
		}
		if !have[joinKey(j)] {
			have[joinKey(j)] = true
			p.Joins = append(p.Joins, j)
		}
	}

	for _, bridge := range hints.BridgeTables {
		if !p.HasTable(bridge) {
			p.Tables = append(p.Tables, bridge)
		}
	}
	sort.SliceStable(p.Joins, func(i, j int) bool {
		return joinKey(p.Joins[i]) < joinKey(p.Joins[j])
	})
}

func joinKey(j Join) string {
	a := j.FromTable + "." + j.FromColumn
	b := j.ToTable + "." + j.ToColumn
	// Direction-insensitive: a join and its flip are the same edge.
	if a > b {
		a, b = b, a
	}
	return a + ">" + b
}

func allowedJoins(hints *schema.JoinHints) map[string]bool {
	if hints == nil {
		return nil
	}
	out := make(map[string]bool, len(hints.Joins))
	for _, e := range hints.Joins {
		out[joinKey(Join{
			FromTable: e.FromTable, FromColumn: e.FromColumn,
			ToTable: e.ToTable, ToColumn: e.ToColumn,
		})] = true
	}
	return out
}

// joinExists reports whether a planned join matches a schema relationship
// in either direction, honoring the relationship's target-column fallback.
func joinExists(g *schema.Graph, j Join) bool {
	want := joinKey(j)
	for _, rel := range g.Relationships {
		toCol := rel.ToColumn
		if toCol == "" {
			if t, ok := g.Tables[rel.ToTable]; ok && t.HasColumn(rel.FromColumn) {
				toCol = rel.FromColumn
			} else {
				toCol = "id"
			}
		}
		k := joinKey(Join{
			FromTable: rel.FromTable, FromColumn: rel.FromColumn,
			ToTable: rel.ToTable, ToColumn: toCol,
		})
		if k == want {
			return true
		}
	}
	return false
}
