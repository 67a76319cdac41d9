package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/access"
	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/examples"
	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/plan"
	"github.com/askdb-inc/askdb-engine/pkg/prompts"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// Request is one natural-language query request.
type Request struct {
	Query              string `json:"query"`
	UserRole           string `json:"user_role,omitempty"`
	ScopingValue       string `json:"scoping_value,omitempty"`
	IncludeExplanation bool   `json:"include_explanation,omitempty"`
}

// Response is the final outcome of one request. On failure the error fields
// carry the stable code, category, and retryability.
type Response struct {
	Success       bool       `json:"success"`
	SQL           string     `json:"sql,omitempty"`
	TablesUsed    []string   `json:"tables_used,omitempty"`
	ExecutionPlan *plan.Plan `json:"execution_plan,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
	// History is the ordered record of every generation attempt.
	History []Attempt `json:"attempt_history,omitempty"`

	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	Category  string `json:"category,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Engine runs the full pipeline for each request. All fields are read-only
// after construction; requests share nothing else.
type Engine struct {
	cfg       *config.Config
	indexer   *schema.Indexer
	ranker    *schema.Ranker
	retriever *examples.Retriever
	validator *sqlcheck.Validator
	client    llm.CompletionClient
	logger    *zap.Logger
}

// NewEngine wires the pipeline from its stages.
func NewEngine(
	cfg *config.Config,
	indexer *schema.Indexer,
	ranker *schema.Ranker,
	retriever *examples.Retriever,
	validator *sqlcheck.Validator,
	client llm.CompletionClient,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		indexer:   indexer,
		ranker:    ranker,
		retriever: retriever,
		validator: validator,
		client:    client,
		logger:    logger.Named("pipeline"),
	}
}

// Run processes one request end to end. It never panics on bad input; every
// failure path produces a Response with a classified error.
func (e *Engine) Run(ctx context.Context, req Request) *Response {
	requestID := uuid.NewString()
	log := e.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Pipeline.RequestBudget())
	defer cancel()

	resp, err := e.run(ctx, req, log)
	if err != nil {
		resp = failure(err)
	}

	log.Info("request finished",
		zap.Bool("success", resp.Success),
		zap.Int("attempts", resp.Attempts),
		zap.String("error_code", resp.ErrorCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp
}

func (e *Engine) run(ctx context.Context, req Request, log *zap.Logger) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.New(apperrors.ValInvalidQueryFormat, "query is empty")
	}

	// Injection screening happens at the boundary, before any completion
	// call can observe the tainted input.
	findings := sqlcheck.CheckRequestFields(map[string]string{
		"query":         req.Query,
		"scoping_value": req.ScopingValue,
	})
	if len(findings) > 0 {
		return nil, apperrors.New(apperrors.ValInjectionDetected,
			fmt.Sprintf("field %q", findings[0].Field))
	}

	role := req.UserRole
	if role == "" {
		role = e.cfg.Security.DefaultRole
	}
	user, err := access.NewUserContext(role, req.ScopingValue)
	if err != nil {
		return nil, err
	}

	ranked := e.ranker.Rank(req.Query)
	tables := ranked.Names()
	if len(tables) == 0 {
		return nil, apperrors.New(apperrors.ValInvalidQueryFormat, "no tables matched the query")
	}
	log.Debug("tables selected",
		zap.Strings("tables", tables),
		zap.Float64("complexity", ranked.Complexity),
		zap.Bool("fallback", ranked.Fallback))

	hints := e.indexer.Graph().JoinPath(tables)
	schemaContext := e.indexer.DescribeTables(tables, fingerprint(req.Query))
	retrieved := e.retriever.Retrieve(req.Query)

	scopingHints := e.scopingHints(tables)

	planPrompt := prompts.BuildPlanPrompt(prompts.PlanContext{
		Query:         req.Query,
		SchemaContext: schemaContext,
		JoinHints:     hints,
		Examples:      retrieved,
		NeedsScoping:  user.NeedsScoping(),
		ScopingHints:  scopingHints,
	})

	var (
		history    []Attempt
		refinement string
	)

	for attempt := 1; attempt <= e.cfg.Pipeline.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			// Wall-clock budget exhausted: give up early, whatever the
			// remaining attempt count.
			return e.giveUp(history, attempt-1, apperrors.Wrap(
				apperrors.ReqTimeout, "request budget exhausted", ctx.Err())), nil
		}

		attemptLog := log.With(zap.Int("attempt", attempt))

		p, genErr := e.generatePlan(ctx, planPrompt, refinement)
		if genErr != nil {
			if fatal, ok := fatalError(genErr); ok {
				return nil, fatal
			}
			attemptLog.Warn("plan generation failed", zap.Error(genErr))
			history = append(history, Attempt{Number: attempt, Errors: []string{genErr.Error()}})
			refinement = "The previous plan was invalid: " + genErr.Error()
			continue
		}

		// Repair and validate against the join paths of the plan's own
		// tables, not the whole ranked selection.
		planHints := e.indexer.Graph().JoinPath(p.Tables)
		plan.Repair(p, planHints)
		if issues := plan.Validate(p, e.indexer.Graph(), planHints, user.NeedsScoping()); len(issues) > 0 {
			attemptLog.Warn("plan validation failed", zap.Int("issues", len(issues)))
			msgs := make([]string, len(issues))
			for i, issue := range issues {
				msgs[i] = issue.Message
			}
			history = append(history, Attempt{Number: attempt, Errors: msgs})
			refinement = "The previous plan had these problems:\n- " + strings.Join(msgs, "\n- ")
			continue
		}

		sql, synthErr := e.synthesizeSQL(ctx, req.Query, p, user, scopingHints, refinement)
		if synthErr != nil {
			if fatal, ok := fatalError(synthErr); ok {
				return nil, fatal
			}
			attemptLog.Warn("sql synthesis failed", zap.Error(synthErr))
			history = append(history, Attempt{Number: attempt, Errors: []string{synthErr.Error()}})
			refinement = "The previous attempt failed: " + synthErr.Error()
			continue
		}

		result := e.validate(sql, user)
		record := Attempt{
			Number: attempt,
			SQL:    sql,
			Result: result,
			Kinds:  result.Kinds(),
		}
		for _, verr := range result.Errors {
			record.Errors = append(record.Errors, verr.Message)
		}
		history = append(history, record)

		switch NextState(result, attempt, e.cfg.Pipeline.MaxAttempts) {
		case StateAccept:
			resp := &Response{
				Success:       true,
				SQL:           sqlcheck.Normalize(sql),
				TablesUsed:    result.Tables,
				ExecutionPlan: p,
				Attempts:      attempt,
				History:       history,
			}
			if req.IncludeExplanation {
				resp.Explanation = e.explain(ctx, req.Query, resp.SQL, attemptLog)
			}
			return resp, nil
		case StateRefine:
			attemptLog.Info("refining", zap.Any("kinds", result.Kinds()))
			refinement = prompts.BuildRefinement(prompts.RefinementContext{
				Graph:        e.indexer.Graph(),
				Result:       result,
				FailedSQL:    sql,
				ScopingValue: user.ScopingValue,
			})
		case StateGiveUp:
			return e.giveUp(history, attempt, nil), nil
		}
	}

	return e.giveUp(history, e.cfg.Pipeline.MaxAttempts, nil), nil
}

// generatePlan runs the planning completion under the per-call timeout.
func (e *Engine) generatePlan(ctx context.Context, basePrompt, refinement string) (*plan.Plan, error) {
	prompt := basePrompt
	if refinement != "" {
		prompt += "\n## Previous Attempt Failed\n\n" + refinement + "\n"
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Pipeline.CallTimeout())
	defer cancel()

	result, err := e.client.Complete(callCtx, llm.Request{
		System:      prompts.PlanSystemMessage,
		Prompt:      prompt,
		Temperature: e.cfg.LLM.Temperature,
		MaxTokens:   e.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return plan.Parse(result.Content)
}

// synthesizeSQL runs the synthesis completion under the per-call timeout.
func (e *Engine) synthesizeSQL(
	ctx context.Context,
	query string,
	p *plan.Plan,
	user *access.UserContext,
	scopingHints []prompts.ScopingHint,
	refinement string,
) (string, error) {
	// Only hints for tables actually in the plan matter here.
	var planHints []prompts.ScopingHint
	for _, h := range scopingHints {
		if p.HasTable(h.Table) {
			planHints = append(planHints, h)
		}
	}

	prompt := prompts.BuildSQLPrompt(prompts.SQLContext{
		Query:        query,
		Plan:         p,
		ScopingValue: user.ScopingValue,
		NeedsScoping: user.NeedsScoping(),
		ScopingHints: planHints,
		Refinement:   refinement,
	})

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Pipeline.CallTimeout())
	defer cancel()

	result, err := e.client.Complete(callCtx, llm.Request{
		System:      prompts.SQLSystemMessage,
		Prompt:      prompt,
		Temperature: e.cfg.LLM.Temperature,
		MaxTokens:   e.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	sql := llm.ExtractSQL(result.Content)
	if strings.TrimSpace(sql) == "" {
		return "", apperrors.New(apperrors.LLMInvalidResponse, "empty SQL in completion")
	}
	return sql, nil
}

// validate runs the SQL validator with the scoping requirement derived from
// the caller's permissions. Structural checks always apply; column, join,
// and scoping checks are skipped for roles that bypass validation.
func (e *Engine) validate(sql string, user *access.UserContext) *sqlcheck.Result {
	result := e.validator.Validate(sql, sqlcheck.Scoping{
		Required: user.NeedsScoping(),
		Value:    user.ScopingValue,
	})
	if !user.Permissions.BypassValidation {
		return result
	}

	// Bypass keeps only the hard security findings.
	kept := result.Errors[:0]
	for _, verr := range result.Errors {
		switch verr.Kind {
		case sqlcheck.KindMultiStatement, sqlcheck.KindDisallowedOperation, sqlcheck.KindSyntaxError:
			kept = append(kept, verr)
		}
	}
	result.Errors = kept
	result.IsValid = len(kept) == 0
	return result
}

// explain runs the optional explanation completion. Failures degrade to an
// empty explanation; they never fail a request that already has valid SQL.
func (e *Engine) explain(ctx context.Context, query, sql string, log *zap.Logger) string {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Pipeline.CallTimeout())
	defer cancel()

	result, err := e.client.Complete(callCtx, llm.Request{
		System:      prompts.ExplanationSystemMessage,
		Prompt:      prompts.BuildExplanationPrompt(query, sql),
		Temperature: e.cfg.LLM.Temperature,
		MaxTokens:   e.cfg.LLM.MaxTokens,
	})
	if err != nil {
		log.Warn("explanation failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(result.Content)
}

// giveUp builds the final failure response from the attempt history. The
// ordered history rides along so callers can see how each attempt failed.
func (e *Engine) giveUp(history []Attempt, attempts int, cause error) *Response {
	var last *Attempt
	if len(history) > 0 {
		last = &history[len(history)-1]
	}
	if cause == nil {
		details := "exhausted generation attempts"
		if last != nil && len(last.Errors) > 0 {
			details = last.Errors[0]
		}
		cause = apperrors.New(apperrors.ValGenerationFailed, details)
	}
	resp := failure(cause)
	resp.Attempts = attempts
	resp.History = history
	if last != nil {
		resp.SQL = last.SQL
		if last.Result != nil {
			resp.TablesUsed = last.Result.Tables
		}
	}
	return resp
}

// scopingHints collects the scoped tables in the selection with their
// resolved scoping columns.
func (e *Engine) scopingHints(tables []string) []prompts.ScopingHint {
	var hints []prompts.ScopingHint
	for _, table := range tables {
		if col := e.indexer.Graph().ScopingColumn(table); col != "" {
			hints = append(hints, prompts.ScopingHint{Table: table, Column: col})
		}
	}
	return hints
}

// fatalError separates errors that abort the request from refinable ones.
// Rate limits, circuit trips, and missing credentials abort immediately;
// timeouts and malformed output refine while attempts remain.
func fatalError(err error) (error, bool) {
	code := apperrors.CodeOf(err)
	switch code.Code {
	case apperrors.LLMRateLimited.Code,
		apperrors.LLMCircuitOpen.Code,
		apperrors.LLMAPIKeyMissing.Code:
		return err, true
	}
	return nil, false
}

// failure maps a classified error onto the response envelope. Internal
// errors are not shown verbatim; callers get the generic message.
func failure(err error) *Response {
	code := apperrors.CodeOf(err)
	message := code.Message
	if code.Code != apperrors.SysInternalError.Code {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Details != "" {
			message = code.Message + ": " + appErr.Details
		}
	}
	return &Response{
		ErrorCode: code.Code,
		Message:   message,
		Category:  string(code.Category),
		Retryable: code.Retryable,
	}
}

// fingerprint reduces a query to a stable cache-context token.
func fingerprint(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) > 8 {
		fields = fields[:8]
	}
	return strings.Join(fields, "-")
}
