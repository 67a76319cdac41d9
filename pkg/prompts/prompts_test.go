package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb-inc/askdb-engine/pkg/examples"
	"github.com/askdb-inc/askdb-engine/pkg/plan"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

const testSchemaDoc = `
tables:
  accounts:
    scoped: true
    columns:
      - name: id
      - name: accounts_entity_id
      - name: balance
  transactions:
    scoped: true
    columns:
      - name: id
      - name: accounts_entity_id
      - name: account_id
      - name: amount

relationships:
  - from: transactions
    on: account_id
    to: accounts
    to_column: id
`

func testGraph(t *testing.T) *schema.Graph {
	t.Helper()
	g, err := schema.Parse([]byte(testSchemaDoc), "accounts_entity_id")
	require.NoError(t, err)
	return g
}

func TestBuildPlanPromptContainsEverything(t *testing.T) {
	g := testGraph(t)
	hints := g.JoinPath([]string{"transactions", "accounts"})

	prompt := BuildPlanPrompt(PlanContext{
		Query:         "total payments per account",
		SchemaContext: "Table: accounts\nTable: transactions\n",
		JoinHints:     hints,
		Examples: []examples.Match{
			{Example: examples.Example{Question: "my balance", SQL: "SELECT balance FROM accounts"}},
		},
		NeedsScoping: true,
		ScopingHints: []ScopingHint{{Table: "accounts", Column: "accounts_entity_id"}},
	})

	assert.Contains(t, prompt, "total payments per account")
	assert.Contains(t, prompt, "Table: accounts")
	assert.Contains(t, prompt, "transactions.account_id = accounts.id")
	assert.Contains(t, prompt, "Q: my balance")
	assert.Contains(t, prompt, "needs_scoping")
	assert.Contains(t, prompt, "accounts.accounts_entity_id")
	assert.Contains(t, prompt, `"tables"`)
}

func TestBuildPlanPromptUnreachableConstraint(t *testing.T) {
	hints := &schema.JoinHints{Unreachable: []string{"audit_events"}}

	prompt := BuildPlanPrompt(PlanContext{
		Query:         "q",
		SchemaContext: "s",
		JoinHints:     hints,
	})
	assert.Contains(t, prompt, "no valid join path")
	assert.Contains(t, prompt, "audit_events")
}

func TestBuildSQLPrompt(t *testing.T) {
	p := &plan.Plan{
		Tables:  []string{"transactions", "accounts"},
		Columns: map[string][]string{"transactions": {"amount"}},
		Joins: []plan.Join{{
			FromTable: "transactions", FromColumn: "account_id",
			ToTable: "accounts", ToColumn: "id", Kind: "INNER",
		}},
		Filters: []string{"transactions.amount > 0"},
	}

	prompt := BuildSQLPrompt(SQLContext{
		Query:        "total payments",
		Plan:         p,
		ScopingValue: "42",
		NeedsScoping: true,
		ScopingHints: []ScopingHint{{Table: "transactions", Column: "accounts_entity_id"}},
	})

	assert.Contains(t, prompt, "Tables: transactions, accounts")
	assert.Contains(t, prompt, "INNER JOIN accounts ON transactions.account_id = accounts.id")
	assert.Contains(t, prompt, "transactions.amount > 0")
	assert.Contains(t, prompt, "transactions.accounts_entity_id = '42'")
	assert.Contains(t, prompt, "exactly one SELECT")
	assert.NotContains(t, prompt, "Previous Attempt Failed")
}

func TestBuildSQLPromptWithRefinement(t *testing.T) {
	prompt := BuildSQLPrompt(SQLContext{
		Query:      "q",
		Plan:       &plan.Plan{Tables: []string{"accounts"}},
		Refinement: "add the scoping predicate",
	})
	assert.Contains(t, prompt, "Previous Attempt Failed")
	assert.Contains(t, prompt, "add the scoping predicate")
}

func TestBuildRefinementScoping(t *testing.T) {
	g := testGraph(t)
	res := &sqlcheck.Result{
		Errors: []sqlcheck.ValidationError{{
			Kind:    sqlcheck.KindMissingScoping,
			Message: `table "accounts" requires a accounts_entity_id scoping predicate`,
			Table:   "accounts",
			Column:  "accounts_entity_id",
		}},
	}

	out := BuildRefinement(RefinementContext{
		Graph:        g,
		Result:       res,
		FailedSQL:    "SELECT a.balance FROM accounts a",
		ScopingValue: "42",
	})

	assert.Contains(t, out, "missing_scoping")
	assert.Contains(t, out, "WHERE accounts.accounts_entity_id = '42'")
}

func TestBuildRefinementSchemaContext(t *testing.T) {
	g := testGraph(t)
	res := &sqlcheck.Result{
		Errors: []sqlcheck.ValidationError{{
			Kind:    sqlcheck.KindUnknownColumn,
			Message: `column "iban" does not exist on table "accounts"`,
			Table:   "accounts",
			Column:  "iban",
		}},
	}

	out := BuildRefinement(RefinementContext{Graph: g, Result: res})

	assert.Contains(t, out, "accounts columns: id, accounts_entity_id, balance")
	assert.Contains(t, out, "transactions.account_id = accounts.id")
}

func TestBuildRefinementSyntaxOnly(t *testing.T) {
	g := testGraph(t)
	res := &sqlcheck.Result{
		Errors: []sqlcheck.ValidationError{{
			Kind:    sqlcheck.KindSyntaxError,
			Message: "unbalanced parentheses",
		}},
	}

	out := BuildRefinement(RefinementContext{
		Graph:     g,
		Result:    res,
		FailedSQL: "SELECT COUNT(a.id FROM accounts a",
	})

	assert.Contains(t, out, "Fix only the syntax")
	assert.Contains(t, out, "SELECT COUNT(a.id FROM accounts a")
}
