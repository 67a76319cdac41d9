package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/examples"
	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

const testSchemaDoc = `
tables:
  accounts:
    description: "Customer accounts with balances"
    scoped: true
    tags: [account, balance]
    columns:
      - name: id
      - name: accounts_entity_id
      - name: balance
      - name: status
  transactions:
    description: "Money movements between accounts"
    scoped: true
    tags: [transaction, payment]
    columns:
      - name: id
      - name: accounts_entity_id
      - name: account_id
      - name: amount
  entities:
    description: "Legal entities owning accounts"
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

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Temperature: 0.1,
			MaxTokens:   512,
		},
		Pipeline: config.PipelineConfig{
			MaxAttempts:          3,
			CallTimeoutSeconds:   5,
			RequestBudgetSeconds: 30,
		},
		Security: config.SecurityConfig{
			ScopingColumn: "accounts_entity_id",
			MaxTables:     10,
			DefaultRole:   "customer",
		},
	}
}

func testEngine(t *testing.T, client llm.CompletionClient) *Engine {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	graph, err := schema.Parse([]byte(testSchemaDoc), cfg.Security.ScopingColumn)
	require.NoError(t, err)

	indexer := schema.NewIndexer(graph, schema.DefaultIndexerOptions(), logger)
	ranker := schema.NewRanker(indexer, schema.DefaultRankerConfig(), logger)
	retriever := examples.New(nil, examples.DefaultOptions(), logger)
	validator := sqlcheck.NewValidator(graph, cfg.Security.MaxTables)

	return NewEngine(cfg, indexer, ranker, retriever, validator, client, logger)
}

const accountPlanJSON = `{
  "tables": ["accounts"],
  "columns": {"accounts": ["balance"]},
  "joins": [],
  "filters": [],
  "needs_scoping": true,
  "scoping_columns_used": ["accounts_entity_id"]
}`

const scopedAccountSQL = "SELECT a.balance FROM accounts a WHERE a.accounts_entity_id = '42'"

func TestCustomerQuerySucceedsWithScoping(t *testing.T) {
	client := llm.ScriptedClient(accountPlanJSON, scopedAccountSQL)
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.Contains(t, resp.SQL, "a.accounts_entity_id = '42'")
	assert.Equal(t, []string{"accounts"}, resp.TablesUsed)
	assert.Equal(t, 1, resp.Attempts)
	require.NotNil(t, resp.ExecutionPlan)
	assert.True(t, resp.ExecutionPlan.NeedsScoping)
	assert.Equal(t, 2, client.CompleteCalls)
}

func TestCustomerWithoutScopingValueFailsFast(t *testing.T) {
	client := llm.NewMockClient()
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:    "show my account balance",
		UserRole: "customer",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ValMissingScopingValue.Code, resp.ErrorCode)
	assert.Equal(t, "VAL", resp.Category)
	// Fails before any completion call is made.
	assert.Equal(t, 0, client.CompleteCalls)
}

func TestAdminQueryWithoutScoping(t *testing.T) {
	planJSON := `{
	  "tables": ["entities"],
	  "columns": {"entities": ["name"]},
	  "joins": [],
	  "filters": [],
	  "needs_scoping": false,
	  "scoping_columns_used": []
	}`
	client := llm.ScriptedClient(planJSON, "SELECT e.name FROM entities e")
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:    "show me all data across all entities and tables",
		UserRole: "admin",
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.NotContains(t, resp.SQL, "accounts_entity_id")
	assert.Equal(t, []string{"entities"}, resp.TablesUsed)
}

func TestInjectionRejectedBeforeGeneration(t *testing.T) {
	client := llm.NewMockClient()
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "'; DROP TABLE accounts--",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ValInjectionDetected.Code, resp.ErrorCode)
	assert.Equal(t, 0, client.CompleteCalls)
}

func TestEmptyQueryRejected(t *testing.T) {
	e := testEngine(t, llm.NewMockClient())

	resp := e.Run(context.Background(), Request{Query: "   ", UserRole: "admin"})
	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ValInvalidQueryFormat.Code, resp.ErrorCode)
}

func TestUnknownRoleRejected(t *testing.T) {
	e := testEngine(t, llm.NewMockClient())

	resp := e.Run(context.Background(), Request{Query: "balance", UserRole: "root"})
	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.AuthInvalidRole.Code, resp.ErrorCode)
}

func TestRefinementRecoversOnSecondAttempt(t *testing.T) {
	unscopedSQL := "SELECT a.balance FROM accounts a"
	client := llm.ScriptedClient(
		accountPlanJSON, unscopedSQL, // attempt 1: missing scoping
		accountPlanJSON, scopedAccountSQL, // attempt 2: fixed
	)
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.Equal(t, 2, resp.Attempts)
	require.Equal(t, 4, client.CompleteCalls)

	// The second synthesis prompt carries the scoping feedback.
	retryPrompt := client.Requests[3].Prompt
	assert.Contains(t, retryPrompt, "Previous Attempt Failed")
	assert.Contains(t, retryPrompt, "missing_scoping")
	assert.Contains(t, retryPrompt, "accounts_entity_id = '42'")

	// The history records the failed first attempt and the valid second one.
	require.Len(t, resp.History, 2)
	assert.Equal(t, 1, resp.History[0].Number)
	assert.Contains(t, resp.History[0].Kinds, sqlcheck.KindMissingScoping)
	assert.Equal(t, 2, resp.History[1].Number)
	assert.True(t, resp.History[1].Result.IsValid)
}

func TestGiveUpAfterMaxAttempts(t *testing.T) {
	unscopedSQL := "SELECT a.balance FROM accounts a"
	client := llm.ScriptedClient(
		accountPlanJSON, unscopedSQL,
		accountPlanJSON, unscopedSQL,
		accountPlanJSON, unscopedSQL,
	)
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ValGenerationFailed.Code, resp.ErrorCode)
	assert.Equal(t, 3, resp.Attempts)
	// Exactly MaxAttempts plan+synthesis cycles, never more.
	assert.Equal(t, 6, client.CompleteCalls)
	// The last attempt's SQL is surfaced for diagnostics.
	assert.Equal(t, unscopedSQL, resp.SQL)

	// The full ordered history is returned, one entry per attempt.
	require.Len(t, resp.History, 3)
	for i, a := range resp.History {
		assert.Equal(t, i+1, a.Number)
		assert.Contains(t, a.Kinds, sqlcheck.KindMissingScoping)
	}
}

func TestMalformedPlanIsRefinable(t *testing.T) {
	client := llm.ScriptedClient(
		"I cannot produce a plan.", // attempt 1: unparsable
		accountPlanJSON, scopedAccountSQL, // attempt 2
	)
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, 3, client.CompleteCalls)
}

func TestPlanReferencingUnknownTableIsRefinable(t *testing.T) {
	badPlan := `{"tables": ["ghosts"], "needs_scoping": true, "scoping_columns_used": ["accounts_entity_id"]}`
	client := llm.ScriptedClient(
		badPlan,
		accountPlanJSON, scopedAccountSQL,
	)
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.Equal(t, 2, resp.Attempts)

	// The second planning prompt names the bad table.
	assert.Contains(t, client.Requests[1].Prompt, "ghosts")
}

func TestRateLimitAbortsInsteadOfRetrying(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.Request) (*llm.Result, error) {
		return nil, apperrors.New(apperrors.LLMRateLimited, "slow down")
	}
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.LLMRateLimited.Code, resp.ErrorCode)
	assert.True(t, resp.Retryable)
	assert.Equal(t, 1, client.CompleteCalls)
}

func TestRequestBudgetAbortsEarly(t *testing.T) {
	client := llm.ScriptedClient(accountPlanJSON, scopedAccountSQL)
	e := testEngine(t, client)
	e.cfg.Pipeline.RequestBudgetSeconds = 0

	resp := e.Run(context.Background(), Request{
		Query:        "show my account balance",
		UserRole:     "customer",
		ScopingValue: "42",
	})

	assert.False(t, resp.Success)
	assert.Equal(t, apperrors.ReqTimeout.Code, resp.ErrorCode)
	assert.Equal(t, 0, client.CompleteCalls)
}

func TestExplanationIncludedOnRequest(t *testing.T) {
	client := llm.ScriptedClient(accountPlanJSON, scopedAccountSQL, "This shows your account balance.")
	e := testEngine(t, client)

	resp := e.Run(context.Background(), Request{
		Query:              "show my account balance",
		UserRole:           "customer",
		ScopingValue:       "42",
		IncludeExplanation: true,
	})

	require.True(t, resp.Success, "message: %s", resp.Message)
	assert.Equal(t, "This shows your account balance.", resp.Explanation)
	assert.Equal(t, 3, client.CompleteCalls)
}

func TestDefaultRoleApplied(t *testing.T) {
	client := llm.NewMockClient()
	e := testEngine(t, client)

	// No role in the request: the configured default (customer) applies,
	// so a missing scoping value fails fast.
	resp := e.Run(context.Background(), Request{Query: "balance"})
	assert.Equal(t, apperrors.ValMissingScopingValue.Code, resp.ErrorCode)
}
