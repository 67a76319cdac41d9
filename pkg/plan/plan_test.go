package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb-inc/askdb-engine/pkg/schema"
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
  entities:
    columns:
      - name: id
      - name: name

relationships:
  - from: transactions
    on: account_id
    to: accounts
    to_column: id
  - from: accounts
    on: accounts_entity_id
    to: entities
    to_column: id
`

func testGraph(t *testing.T) *schema.Graph {
	t.Helper()
	g, err := schema.Parse([]byte(testSchemaDoc), "accounts_entity_id")
	require.NoError(t, err)
	return g
}

func TestParsePlanFromFencedResponse(t *testing.T) {
	response := "```json\n" + `{
  "tables": ["transactions", "accounts"],
  "columns": {"transactions": ["amount"]},
  "joins": [{"from_table": "transactions", "from_column": "account_id", "to_table": "accounts", "to_column": "id"}],
  "filters": [],
  "needs_scoping": true,
  "scoping_columns_used": ["accounts_entity_id"]
}` + "\n```"

	p, err := Parse(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"transactions", "accounts"}, p.Tables)
	assert.True(t, p.NeedsScoping)
	require.Len(t, p.Joins, 1)
	assert.Equal(t, "INNER", p.Joins[0].Kind)
}

func TestParsePlanRejectsBadResponses(t *testing.T) {
	_, err := Parse("no json here")
	assert.Error(t, err)

	_, err = Parse(`{"tables": []}`)
	assert.Error(t, err)
}

func TestParsePlanDedupsTables(t *testing.T) {
	p, err := Parse(`{"tables": ["accounts", "accounts", " transactions "]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "transactions"}, p.Tables)
}

func TestValidateCleanPlan(t *testing.T) {
	g := testGraph(t)
	p := &Plan{
		Tables:  []string{"transactions", "accounts"},
		Columns: map[string][]string{"transactions": {"amount", "*"}},
		Joins: []Join{{
			FromTable: "transactions", FromColumn: "account_id",
			ToTable: "accounts", ToColumn: "id",
		}},
		NeedsScoping:       true,
		ScopingColumnsUsed: []string{"accounts_entity_id"},
	}
	hints := g.JoinPath(p.Tables)

	assert.Empty(t, Validate(p, g, hints, true))
}

func TestValidateFindsSchemaMismatches(t *testing.T) {
	g := testGraph(t)

	tests := []struct {
		name string
		p    *Plan
		want string
	}{
		{
			name: "unknown table",
			p:    &Plan{Tables: []string{"ghosts"}},
			want: "unknown table",
		},
		{
			name: "unknown column",
			p: &Plan{
				Tables:  []string{"accounts"},
				Columns: map[string][]string{"accounts": {"iban"}},
			},
			want: "unknown column",
		},
		{
			name: "join not in schema",
			p: &Plan{
				Tables: []string{"transactions", "entities"},
				Joins: []Join{{
					FromTable: "transactions", FromColumn: "id",
					ToTable: "entities", ToColumn: "id",
				}},
			},
			want: "does not match any schema relationship",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.p, g, g.JoinPath(tt.p.Tables), false)
			require.NotEmpty(t, issues)
			assert.Contains(t, issues[0].Message, tt.want)
		})
	}
}

func TestValidateScopingRequirement(t *testing.T) {
	g := testGraph(t)
	p := &Plan{Tables: []string{"accounts"}, NeedsScoping: false}

	issues := Validate(p, g, g.JoinPath(p.Tables), true)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0].Message, "needs_scoping")
	assert.Contains(t, issues[1].Message, "scoping columns")
}

func TestRepairSynthesizesBridgeJoins(t *testing.T) {
	g := testGraph(t)
	p := &Plan{Tables: []string{"transactions", "entities"}}
	hints := g.JoinPath(p.Tables)
	require.True(t, hints.Connected())

	Repair(p, hints)

	// The bridge table and both joins were added.
	assert.True(t, p.HasTable("accounts"))
	assert.Len(t, p.Joins, 2)
	assert.Empty(t, Validate(p, g, hints, false))
}

func TestRepairIsAdditiveAndIdempotent(t *testing.T) {
	g := testGraph(t)
	p := &Plan{
		Tables: []string{"transactions", "accounts"},
		Joins: []Join{{
			FromTable: "transactions", FromColumn: "account_id",
			ToTable: "accounts", ToColumn: "id", Kind: "INNER",
		}},
	}
	hints := g.JoinPath(p.Tables)

	Repair(p, hints)
	Repair(p, hints)

	assert.Equal(t, []string{"transactions", "accounts"}, p.Tables)
	assert.Len(t, p.Joins, 1)
}
