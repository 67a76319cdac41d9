package sqlcheck

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

// ErrorKind is the stable classification tag on a validation error. The
// refinement loop branches on these, so the set and spelling are frozen.
type ErrorKind string

const (
	KindMissingScoping      ErrorKind = "missing_scoping"
	KindUnknownColumn       ErrorKind = "unknown_column"
	KindInvalidJoin         ErrorKind = "invalid_join"
	KindMultiStatement      ErrorKind = "multi_statement"
	KindSyntaxError         ErrorKind = "syntax_error"
	KindDisallowedOperation ErrorKind = "disallowed_operation"
)

// ValidationError is one violated check.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Table   string    `json:"table,omitempty"`
	Column  string    `json:"column,omitempty"`
	Alias   string    `json:"alias,omitempty"`
}

// Result is the outcome of validating one statement.
type Result struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors,omitempty"`
	// Tables lists the concrete table names referenced by the statement.
	Tables []string `json:"tables,omitempty"`
}

// Kinds returns the distinct error kinds present, in first-seen order.
func (r *Result) Kinds() []ErrorKind {
	seen := make(map[ErrorKind]bool)
	var out []ErrorKind
	for _, e := range r.Errors {
		if !seen[e.Kind] {
			seen[e.Kind] = true
			out = append(out, e.Kind)
		}
	}
	return out
}

// forbiddenVerbPattern matches write and DDL commands; only SELECT is
// permitted.
var forbiddenVerbPattern = regexp.MustCompile(
	`\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|EXEC|EXECUTE|MERGE|CALL)\b`)

// tableRefPattern matches FROM/JOIN clauses with an optional alias.
var tableRefPattern = regexp.MustCompile(
	`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_]*)(?:\s+(?:as\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?`)

// qualifiedColumnPattern matches alias.column references.
var qualifiedColumnPattern = regexp.MustCompile(
	`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)

// reservedAfterTable are keywords that can follow a table name and must not
// be mistaken for an alias.
var reservedAfterTable = map[string]bool{
	"on": true, "where": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "outer": true, "cross": true, "group": true,
	"order": true, "having": true, "limit": true, "offset": true,
	"union": true, "using": true, "set": true,
}

// Validator checks generated SQL against the schema graph and the active
// scoping requirements. Stateless; safe for concurrent use.
type Validator struct {
	graph *schema.Graph
	// MaxTables caps how many distinct tables one statement may touch.
	// Zero disables the cap.
	MaxTables int
}

// NewValidator creates a validator over the schema graph.
func NewValidator(graph *schema.Graph, maxTables int) *Validator {
	return &Validator{graph: graph, MaxTables: maxTables}
}

// Scoping describes the row-isolation requirement for one validation run.
type Scoping struct {
	// Required asserts that every scoped table in the statement must carry
	// a scoping predicate.
	Required bool
	// Value is the expected scoping literal. Empty means any literal or
	// placeholder satisfies the predicate shape.
	Value string
}

// Validate runs every check against the statement and returns all findings.
// Checks run in order from cheapest to most structural, but none short-circuit
// except unsalvageable syntax, so one pass reports everything refinable.
func (v *Validator) Validate(sql string, scoping Scoping) *Result {
	res := &Result{}
	normalized := Normalize(sql)

	if normalized == "" {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntaxError, Message: "empty statement",
		})
		return res
	}

	if unterminatedString(normalized) {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntaxError, Message: "unterminated string literal",
		})
		return res
	}

	if HasMultipleStatements(normalized) {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindMultiStatement, Message: "multiple SQL statements are not allowed",
		})
	}

	bare := stripStrings(normalized)

	if strings.Contains(bare, "--") || strings.Contains(bare, "/*") {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindDisallowedOperation, Message: "SQL comments are not allowed",
		})
	}

	upper := strings.ToUpper(bare)
	for _, verb := range dedup(forbiddenVerbPattern.FindAllString(upper, -1)) {
		res.Errors = append(res.Errors, ValidationError{
			Kind:    KindDisallowedOperation,
			Message: fmt.Sprintf("%s is not permitted; only SELECT statements are allowed", verb),
		})
	}

	firstWord := strings.ToUpper(firstToken(bare))
	if firstWord != "SELECT" && firstWord != "WITH" {
		res.Errors = append(res.Errors, ValidationError{
			Kind:    KindDisallowedOperation,
			Message: fmt.Sprintf("statement must be a SELECT, got %q", firstWord),
		})
	}

	if !balancedParens(normalized) {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntaxError, Message: "unbalanced parentheses",
		})
	}

	aliases := v.resolveAliases(bare, res)
	for table := range tablesOf(aliases) {
		res.Tables = append(res.Tables, table)
	}
	sort.Strings(res.Tables)

	if v.MaxTables > 0 && len(res.Tables) > v.MaxTables {
		res.Errors = append(res.Errors, ValidationError{
			Kind:    KindDisallowedOperation,
			Message: fmt.Sprintf("statement touches %d tables, limit is %d", len(res.Tables), v.MaxTables),
		})
	}

	v.checkColumns(bare, aliases, res)
	v.checkJoins(bare, aliases, res)
	if scoping.Required {
		// Scoping predicates compare against string literals, so this check
		// runs on the unstripped statement.
		v.checkScoping(normalized, aliases, scoping.Value, res)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// resolveAliases maps every alias (or bare table name) in FROM/JOIN clauses
// to its concrete table. Unknown tables are reported as invalid joins.
func (v *Validator) resolveAliases(bare string, res *Result) map[string]string {
	aliases := make(map[string]string)
	for _, m := range tableRefPattern.FindAllStringSubmatch(bare, -1) {
		table := m[1]
		alias := m[2]
		if reservedAfterTable[strings.ToLower(alias)] {
			alias = ""
		}
		if _, ok := v.graph.Tables[table]; !ok {
			res.Errors = append(res.Errors, ValidationError{
				Kind:    KindInvalidJoin,
				Message: fmt.Sprintf("unknown table %q", table),
				Table:   table,
			})
			continue
		}
		aliases[table] = table
		if alias != "" {
			aliases[alias] = table
		}
	}
	return aliases
}

// checkColumns verifies every qualified column reference resolves to a real
// column on the table its alias denotes. When the statement reads exactly one
// table, unqualified identifiers are resolved against it as well.
func (v *Validator) checkColumns(bare string, aliases map[string]string, res *Result) {
	seen := make(map[string]bool)
	for _, m := range qualifiedColumnPattern.FindAllStringSubmatch(bare, -1) {
		alias, column := m[1], m[2]
		table, ok := aliases[alias]
		if !ok {
			// Not a table alias; likely a function call or schema prefix.
			continue
		}
		key := alias + "." + column
		if seen[key] {
			continue
		}
		seen[key] = true
		if !v.graph.Tables[table].HasColumn(column) {
			res.Errors = append(res.Errors, ValidationError{
				Kind:    KindUnknownColumn,
				Message: fmt.Sprintf("column %q does not exist on table %q", column, table),
				Table:   table,
				Column:  column,
				Alias:   alias,
			})
		}
	}
	v.checkUnqualifiedColumns(bare, aliases, res)
}

// sqlKeywords are identifiers that never denote a column.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "in": true, "is": true, "null": true, "as": true, "on": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"outer": true, "cross": true, "group": true, "by": true, "order": true,
	"having": true, "limit": true, "offset": true, "asc": true, "desc": true,
	"distinct": true, "between": true, "like": true, "ilike": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"union": true, "all": true, "any": true, "some": true, "exists": true,
	"with": true, "using": true, "cast": true, "interval": true,
	"true": true, "false": true,
	"current_date": true, "current_timestamp": true,
}

var identPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

var asAliasPattern = regexp.MustCompile(`(?i)\bas\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// checkUnqualifiedColumns resolves bare identifiers against the sole table of
// a single-table SELECT. Statements reading several tables are left to the
// qualified check; a bare column there is ambiguous, not provably wrong.
func (v *Validator) checkUnqualifiedColumns(bare string, aliases map[string]string, res *Result) {
	tables := tablesOf(aliases)
	if len(tables) != 1 || strings.ToUpper(firstToken(bare)) != "SELECT" {
		return
	}
	var sole string
	for table := range tables {
		sole = table
	}

	// Output aliases introduced with AS are projection names, not columns.
	outAliases := make(map[string]bool)
	for _, m := range asAliasPattern.FindAllStringSubmatch(bare, -1) {
		outAliases[strings.ToLower(m[1])] = true
	}

	seen := make(map[string]bool)
	for _, loc := range identPattern.FindAllStringIndex(bare, -1) {
		ident := bare[loc[0]:loc[1]]
		lower := strings.ToLower(ident)
		if sqlKeywords[lower] || outAliases[lower] || seen[lower] {
			continue
		}
		if _, ok := aliases[ident]; ok {
			continue
		}
		// Qualified references and alias prefixes were handled above.
		if loc[0] > 0 && bare[loc[0]-1] == '.' {
			continue
		}
		if loc[1] < len(bare) && bare[loc[1]] == '.' {
			continue
		}
		// Function call.
		if strings.HasPrefix(strings.TrimLeft(bare[loc[1]:], " "), "(") {
			continue
		}
		seen[lower] = true
		if !v.graph.Tables[sole].HasColumn(ident) {
			res.Errors = append(res.Errors, ValidationError{
				Kind:    KindUnknownColumn,
				Message: fmt.Sprintf("column %q does not exist on table %q", ident, sole),
				Table:   sole,
				Column:  ident,
			})
		}
	}
}

// onClausePattern matches JOIN ... ON a.x = b.y equality predicates.
var onClausePattern = regexp.MustCompile(
	`(?i)\bon\s+([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)`)

// checkJoins verifies each ON equality corresponds to a relationship in the
// schema graph, in either direction.
func (v *Validator) checkJoins(bare string, aliases map[string]string, res *Result) {
	for _, m := range onClausePattern.FindAllStringSubmatch(bare, -1) {
		leftTable, ok1 := aliases[m[1]]
		rightTable, ok2 := aliases[m[3]]
		if !ok1 || !ok2 {
			continue
		}
		if !v.relationshipExists(leftTable, m[2], rightTable, m[4]) {
			res.Errors = append(res.Errors, ValidationError{
				Kind: KindInvalidJoin,
				Message: fmt.Sprintf("join %s.%s = %s.%s does not match any schema relationship",
					leftTable, m[2], rightTable, m[4]),
				Table: leftTable,
			})
		}
	}
}

func (v *Validator) relationshipExists(aTable, aCol, bTable, bCol string) bool {
	for _, rel := range v.graph.Relationships {
		toCol := rel.ToColumn
		if toCol == "" {
			if t, ok := v.graph.Tables[rel.ToTable]; ok && t.HasColumn(rel.FromColumn) {
				toCol = rel.FromColumn
			} else {
				toCol = "id"
			}
		}
		forward := rel.FromTable == aTable && rel.FromColumn == aCol &&
			rel.ToTable == bTable && toCol == bCol
		reverse := rel.FromTable == bTable && rel.FromColumn == bCol &&
			rel.ToTable == aTable && toCol == aCol
		if forward || reverse {
			return true
		}
	}
	return false
}

// checkScoping requires a `<alias>.<scoping column> = <value>` predicate for
// every scoped table present in the statement. Single-table statements may
// use the unqualified column.
func (v *Validator) checkScoping(sql string, aliases map[string]string, value string, res *Result) {
	// Collect the aliases per table so any one predicate satisfies the table.
	byTable := make(map[string][]string)
	for alias, table := range aliases {
		byTable[table] = append(byTable[table], alias)
	}
	tables := make([]string, 0, len(byTable))
	for table := range byTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		tableAliases := byTable[table]
		sort.Strings(tableAliases)
		col := v.graph.ScopingColumn(table)
		if col == "" {
			continue
		}

		// The literal must end where the value ends: a predicate bound to
		// '4234' never satisfies scoping value 42.
		valuePart := ``
		if value != "" {
			quoted := regexp.QuoteMeta(value)
			valuePart = `(?:'` + quoted + `'|` + quoted + `\b)`
		}

		satisfied := false
		for _, alias := range tableAliases {
			pattern := `(?i)\b` + regexp.QuoteMeta(alias) + `\.` + regexp.QuoteMeta(col) + `\s*=\s*` + valuePart
			if regexp.MustCompile(pattern).MatchString(sql) {
				satisfied = true
				break
			}
		}
		if !satisfied && len(byTable) == 1 {
			// A single-table statement may scope with the bare column.
			pattern := `(?i)(?:^|[^.\w])` + regexp.QuoteMeta(col) + `\s*=\s*` + valuePart
			satisfied = regexp.MustCompile(pattern).MatchString(sql)
		}
		if !satisfied {
			res.Errors = append(res.Errors, ValidationError{
				Kind:    KindMissingScoping,
				Message: fmt.Sprintf("table %q requires a %s scoping predicate", table, col),
				Table:   table,
				Column:  col,
			})
		}
	}
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func tablesOf(aliases map[string]string) map[string]bool {
	out := make(map[string]bool, len(aliases))
	for _, table := range aliases {
		out[table] = true
	}
	return out
}

func dedup(s []string) []string {
	seen := make(map[string]bool, len(s))
	var out []string
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
