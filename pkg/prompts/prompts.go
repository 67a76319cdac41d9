// Package prompts builds the completion prompts for plan generation, SQL
// synthesis, refinement, and explanation. All builders are pure functions
// over context structs so prompt content is testable without a provider.
package prompts

import (
	"fmt"
	"strings"

	"github.com/askdb-inc/askdb-engine/pkg/examples"
	"github.com/askdb-inc/askdb-engine/pkg/plan"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

// PlanSystemMessage instructs the model for the planning call.
const PlanSystemMessage = "You are a SQL query planner. You analyze questions against a database schema " +
	"and respond with a JSON query plan. Respond with JSON only, no prose."

// SQLSystemMessage instructs the model for the synthesis call.
const SQLSystemMessage = "You are a SQL generator. You convert query plans into a single read-only " +
	"SELECT statement. Respond with SQL only, no prose."

// ExplanationSystemMessage instructs the model for the explanation call.
const ExplanationSystemMessage = "You explain SQL queries to non-technical users in one or two plain sentences."

// PlanContext carries everything the planning prompt needs.
type PlanContext struct {
	Query         string
	SchemaContext string
	JoinHints     *schema.JoinHints
	Examples      []examples.Match
	NeedsScoping  bool
	ScopingHints  []ScopingHint
}

// ScopingHint names the row-isolation column for one scoped table.
type ScopingHint struct {
	Table  string
	Column string
}

// BuildPlanPrompt creates the prompt for the planning call. The response
// format section pins the exact JSON shape plan.Parse expects.
func BuildPlanPrompt(pc PlanContext) string {
	var b strings.Builder

	b.WriteString("# Query Planning\n\n")
	b.WriteString("Build a query plan answering this question:\n\n")
	b.WriteString(fmt.Sprintf("Question: %s\n\n", pc.Query))

	b.WriteString("## Schema\n\n")
	b.WriteString(pc.SchemaContext)
	b.WriteString("\n")

	if pc.JoinHints != nil && len(pc.JoinHints.Joins) > 0 {
		b.WriteString("## Join Paths\n\n")
		b.WriteString("Use only these joins:\n")
		for _, j := range pc.JoinHints.Joins {
			b.WriteString(fmt.Sprintf("- %s %s.%s = %s.%s\n",
				j.Kind, j.FromTable, j.FromColumn, j.ToTable, j.ToColumn))
		}
		if len(pc.JoinHints.BridgeTables) > 0 {
			b.WriteString(fmt.Sprintf("Bridge tables required: %s\n",
				strings.Join(pc.JoinHints.BridgeTables, ", ")))
		}
		b.WriteString("\n")
	}
	if pc.JoinHints != nil && !pc.JoinHints.Connected() {
		b.WriteString("## Constraint\n\n")
		b.WriteString(pc.JoinHints.Diagnostic())
		b.WriteString("\n\n")
	}

	if len(pc.Examples) > 0 {
		b.WriteString("## Similar Questions\n\n")
		for _, ex := range pc.Examples {
			b.WriteString(fmt.Sprintf("Q: %s\nSQL: %s\n\n", ex.Question, ex.SQL))
		}
	}

	if pc.NeedsScoping {
		b.WriteString("## Data Isolation\n\n")
		b.WriteString("This user may only see their own entity's rows. ")
		b.WriteString("The plan must set needs_scoping to true and list the scoping columns used:\n")
		for _, h := range pc.ScopingHints {
			b.WriteString(fmt.Sprintf("- %s.%s\n", h.Table, h.Column))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Response Format\n\n")
	b.WriteString("Respond with JSON in exactly this shape:\n")
	b.WriteString(`{
  "tables": ["table_a", "table_b"],
  "columns": {"table_a": ["col1", "col2"]},
  "joins": [{"from_table": "table_a", "from_column": "b_id", "to_table": "table_b", "to_column": "id", "kind": "INNER"}],
  "filters": ["table_a.status = 'active'"],
  "needs_scoping": false,
  "scoping_columns_used": []
}`)
	b.WriteString("\n")
	return b.String()
}

// SQLContext carries everything the synthesis prompt needs.
type SQLContext struct {
	Query        string
	Plan         *plan.Plan
	ScopingValue string
	NeedsScoping bool
	ScopingHints []ScopingHint
	// Refinement carries error feedback from a failed validation attempt.
	Refinement string
}

// BuildSQLPrompt creates the prompt for the synthesis call. The model is
// constrained to the tables, columns, and joins the plan enumerates.
func BuildSQLPrompt(sc SQLContext) string {
	var b strings.Builder

	b.WriteString("# SQL Generation\n\n")
	b.WriteString(fmt.Sprintf("Question: %s\n\n", sc.Query))

	b.WriteString("## Query Plan\n\n")
	b.WriteString(fmt.Sprintf("Tables: %s\n", strings.Join(sc.Plan.Tables, ", ")))
	for _, table := range sc.Plan.Tables {
		if cols, ok := sc.Plan.Columns[table]; ok && len(cols) > 0 {
			b.WriteString(fmt.Sprintf("Columns of %s: %s\n", table, strings.Join(cols, ", ")))
		}
	}
	if len(sc.Plan.Joins) > 0 {
		b.WriteString("Joins:\n")
		for _, j := range sc.Plan.Joins {
			b.WriteString(fmt.Sprintf("- %s JOIN %s ON %s.%s = %s.%s\n",
				j.Kind, j.ToTable, j.FromTable, j.FromColumn, j.ToTable, j.ToColumn))
		}
	}
	if len(sc.Plan.Filters) > 0 {
		b.WriteString("Filters:\n")
		for _, f := range sc.Plan.Filters {
			b.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}
	b.WriteString("\n")

	if sc.NeedsScoping {
		b.WriteString("## Mandatory Scoping\n\n")
		b.WriteString("Every scoped table must be filtered to the caller's entity. Required predicates:\n")
		for _, h := range sc.ScopingHints {
			b.WriteString(fmt.Sprintf("- %s.%s = '%s'\n", h.Table, h.Column, sc.ScopingValue))
		}
		b.WriteString("\n")
	}

	if sc.Refinement != "" {
		b.WriteString("## Previous Attempt Failed\n\n")
		b.WriteString(sc.Refinement)
		b.WriteString("\n\n")
	}

	b.WriteString("## Rules\n\n")
	b.WriteString("- Produce exactly one SELECT statement, nothing else.\n")
	b.WriteString("- Use only the tables, columns, and joins listed in the plan.\n")
	b.WriteString("- No SQL comments, no semicolons, no data modification.\n")
	return b.String()
}

// BuildExplanationPrompt creates the prompt for the optional explanation call.
func BuildExplanationPrompt(query, sql string) string {
	var b strings.Builder
	b.WriteString("Explain what this SQL query does, in plain language, for the person who asked:\n\n")
	b.WriteString(fmt.Sprintf("Question: %s\n", query))
	b.WriteString(fmt.Sprintf("SQL: %s\n", sql))
	return b.String()
}
