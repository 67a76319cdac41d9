package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// RefinementContext carries a failed attempt's findings plus the schema
// context needed to correct them.
type RefinementContext struct {
	Graph        *schema.Graph
	Result       *sqlcheck.Result
	FailedSQL    string
	ScopingValue string
}

// BuildRefinement renders error-kind-specific feedback for the next
// synthesis attempt. Each kind gets targeted context: scoping errors show a
// correct predicate, join and column errors show the real relationships and
// columns, syntax errors ask for a syntax-only fix of the previous SQL.
func BuildRefinement(rc RefinementContext) string {
	var b strings.Builder

	b.WriteString("The previous SQL failed validation:\n")
	for _, e := range rc.Result.Errors {
		b.WriteString(fmt.Sprintf("- [%s] %s\n", e.Kind, e.Message))
	}
	b.WriteString("\n")

	for _, kind := range rc.Result.Kinds() {
		switch kind {
		case sqlcheck.KindMissingScoping:
			b.WriteString(refineScoping(rc))
		case sqlcheck.KindInvalidJoin, sqlcheck.KindUnknownColumn:
			b.WriteString(refineSchema(rc))
		case sqlcheck.KindSyntaxError:
			b.WriteString(refineSyntax(rc))
		case sqlcheck.KindMultiStatement:
			b.WriteString("Emit exactly one statement with no semicolons.\n")
		case sqlcheck.KindDisallowedOperation:
			b.WriteString("Only a single read-only SELECT is permitted. Remove any other commands or comments.\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// refineScoping shows the correct scoping predicate for each implicated table.
func refineScoping(rc RefinementContext) string {
	var b strings.Builder
	b.WriteString("Add the required scoping predicate to the WHERE clause. Correct form:\n")
	for _, e := range rc.Result.Errors {
		if e.Kind != sqlcheck.KindMissingScoping {
			continue
		}
		value := rc.ScopingValue
		if value == "" {
			value = "<entity_id>"
		}
		b.WriteString(fmt.Sprintf("  WHERE %s.%s = '%s'\n", e.Table, e.Column, value))
	}
	return b.String()
}

// refineSchema lists the real columns and relationships of the implicated
// tables so the next attempt references entities that exist.
func refineSchema(rc RefinementContext) string {
	tables := make(map[string]bool)
	for _, e := range rc.Result.Errors {
		switch e.Kind {
		case sqlcheck.KindInvalidJoin, sqlcheck.KindUnknownColumn:
			if e.Table != "" {
				tables[e.Table] = true
			}
		}
	}
	if len(tables) == 0 {
		for _, t := range rc.Result.Tables {
			tables[t] = true
		}
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Schema facts for the tables involved:\n")
	for _, name := range names {
		t, ok := rc.Graph.Tables[name]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s columns: %s\n", name, strings.Join(t.ColumnNames(), ", ")))
	}
	for _, rel := range rc.Graph.RelationshipsTouching(names) {
		toCol := rel.ToColumn
		if toCol == "" {
			toCol = "id"
		}
		b.WriteString(fmt.Sprintf("  relationship: %s.%s = %s.%s\n",
			rel.FromTable, rel.FromColumn, rel.ToTable, toCol))
	}
	return b.String()
}

// refineSyntax re-supplies the failed SQL with an instruction to change
// nothing but the syntax.
func refineSyntax(rc RefinementContext) string {
	var b strings.Builder
	b.WriteString("Fix only the syntax of this SQL, keeping its tables, columns, and joins unchanged:\n")
	b.WriteString(rc.FailedSQL)
	b.WriteString("\n")
	return b.String()
}
