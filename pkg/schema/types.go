// Package schema owns the schema graph: the static description of tables,
// columns, and relationships that every other stage of the pipeline ranks,
// joins, and validates against. The graph is built once from a document,
// validated structurally, and treated as immutable; reloads replace the
// whole graph rather than mutating it in place.
package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
)

// ColumnRef identifies a column on a specific table.
type ColumnRef struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column" json:"column"`
}

// Column describes one column of a table.
type Column struct {
	Name       string     `yaml:"name" json:"name"`
	Type       string     `yaml:"type" json:"type"`
	Nullable   bool       `yaml:"nullable" json:"nullable"`
	PrimaryKey bool       `yaml:"primary_key" json:"primary_key"`
	References *ColumnRef `yaml:"references,omitempty" json:"references,omitempty"`
}

// Table describes one table of the schema.
type Table struct {
	Name          string   `yaml:"-" json:"name"`
	Description   string   `yaml:"description" json:"description"`
	Columns       []Column `yaml:"columns" json:"columns"`
	Scoped        bool     `yaml:"scoped" json:"scoped"`
	ScopingColumn string   `yaml:"scoping_column,omitempty" json:"scoping_column,omitempty"`
	Tags          []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the ordered column names of the table.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Relationship is one join edge of the schema's relationship graph.
type Relationship struct {
	FromTable  string `yaml:"from" json:"from_table"`
	FromColumn string `yaml:"on" json:"from_column"`
	ToTable    string `yaml:"to" json:"to_table"`
	ToColumn   string `yaml:"to_column" json:"to_column"`
	JoinKind   string `yaml:"join_kind,omitempty" json:"join_kind,omitempty"`
}

// Graph is the immutable schema graph shared read-only across requests.
type Graph struct {
	Tables        map[string]*Table
	Relationships []Relationship
	// Keywords maps a query keyword to the tables it implies, e.g.
	// "parcel" -> [shipments]. Contributes to table documents and ranking.
	Keywords map[string][]string

	// DefaultScopingColumn applies to scoped tables without an override.
	DefaultScopingColumn string

	adjacency map[string][]edge
}

type edge struct {
	to  string
	rel Relationship
}

type graphDocument struct {
	Tables        map[string]*Table   `yaml:"tables"`
	Relationships []Relationship      `yaml:"relationships"`
	Keywords      map[string][]string `yaml:"keyword_mappings"`
}

// Load reads and validates a schema description document.
func Load(path, defaultScopingColumn string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ValSchemaGraphInvalid,
			fmt.Sprintf("reading schema document %s", path), err)
	}
	return Parse(data, defaultScopingColumn)
}

// Parse builds a Graph from a schema description document.
func Parse(data []byte, defaultScopingColumn string) (*Graph, error) {
	var doc graphDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ValSchemaGraphInvalid, "parsing schema document", err)
	}

	g := &Graph{
		Tables:               doc.Tables,
		Relationships:        doc.Relationships,
		Keywords:             doc.Keywords,
		DefaultScopingColumn: defaultScopingColumn,
	}
	if g.Tables == nil {
		g.Tables = map[string]*Table{}
	}
	for name, t := range g.Tables {
		t.Name = name
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	g.buildAdjacency()
	return g, nil
}

// validate enforces the structural invariants: every foreign-key reference
// and every relationship must point at tables and columns present in the
// graph, and scoped tables must actually carry their scoping column.
// Violations are fatal for the whole pipeline, not retryable.
func (g *Graph) validate() error {
	if len(g.Tables) == 0 {
		return apperrors.New(apperrors.ValSchemaGraphInvalid, "schema document defines no tables")
	}

	for name, t := range g.Tables {
		for _, c := range t.Columns {
			if c.References == nil {
				continue
			}
			target, ok := g.Tables[c.References.Table]
			if !ok {
				return apperrors.New(apperrors.ValSchemaGraphInvalid,
					fmt.Sprintf("%s.%s references unknown table %q", name, c.Name, c.References.Table))
			}
			if !target.HasColumn(c.References.Column) {
				return apperrors.New(apperrors.ValSchemaGraphInvalid,
					fmt.Sprintf("%s.%s references unknown column %s.%s",
						name, c.Name, c.References.Table, c.References.Column))
			}
		}
		if t.Scoped {
			col := g.ScopingColumn(name)
			if !t.HasColumn(col) {
				return apperrors.New(apperrors.ValSchemaGraphInvalid,
					fmt.Sprintf("scoped table %q is missing its scoping column %q", name, col))
			}
		}
	}

	for _, rel := range g.Relationships {
		from, ok := g.Tables[rel.FromTable]
		if !ok {
			return apperrors.New(apperrors.ValSchemaGraphInvalid,
				fmt.Sprintf("relationship references unknown table %q", rel.FromTable))
		}
		to, ok := g.Tables[rel.ToTable]
		if !ok {
			return apperrors.New(apperrors.ValSchemaGraphInvalid,
				fmt.Sprintf("relationship references unknown table %q", rel.ToTable))
		}
		if !from.HasColumn(rel.FromColumn) {
			return apperrors.New(apperrors.ValSchemaGraphInvalid,
				fmt.Sprintf("relationship references unknown column %s.%s", rel.FromTable, rel.FromColumn))
		}
		if rel.ToColumn != "" && !to.HasColumn(rel.ToColumn) {
			return apperrors.New(apperrors.ValSchemaGraphInvalid,
				fmt.Sprintf("relationship references unknown column %s.%s", rel.ToTable, rel.ToColumn))
		}
	}
	return nil
}

func (g *Graph) buildAdjacency() {
	g.adjacency = make(map[string][]edge)
	for _, rel := range g.Relationships {
		r := rel
		if r.ToColumn == "" {
			// Fall back to a same-named column on the target, else its id.
			if g.Tables[r.ToTable].HasColumn(r.FromColumn) {
				r.ToColumn = r.FromColumn
			} else {
				r.ToColumn = "id"
			}
		}
		if r.JoinKind == "" {
			r.JoinKind = "INNER"
		}
		g.adjacency[r.FromTable] = append(g.adjacency[r.FromTable], edge{to: r.ToTable, rel: r})
		g.adjacency[r.ToTable] = append(g.adjacency[r.ToTable], edge{to: r.FromTable, rel: r})
	}
}

// ScopingColumn resolves the row-isolation column for a table, honoring the
// per-table override before the graph-wide default.
func (g *Graph) ScopingColumn(table string) string {
	t, ok := g.Tables[table]
	if !ok || !t.Scoped {
		return ""
	}
	if t.ScopingColumn != "" {
		return t.ScopingColumn
	}
	return g.DefaultScopingColumn
}

// TableNames returns all table names in deterministic (sorted) order.
func (g *Graph) TableNames() []string {
	names := make([]string, 0, len(g.Tables))
	for name := range g.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScopedTables returns the names of all scoped tables, sorted.
func (g *Graph) ScopedTables() []string {
	var out []string
	for name, t := range g.Tables {
		if t.Scoped {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
