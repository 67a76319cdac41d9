package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/examples"
	"github.com/askdb-inc/askdb-engine/pkg/handlers"
	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/pipeline"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
	"github.com/askdb-inc/askdb-engine/pkg/textindex"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("schema_path", cfg.SchemaPath),
		zap.String("llm_endpoint", cfg.LLM.Endpoint),
		zap.String("llm_model", cfg.LLM.Model))

	graph, err := schema.Load(cfg.SchemaPath, cfg.Security.ScopingColumn)
	if err != nil {
		logger.Fatal("failed to load schema graph", zap.Error(err))
	}

	indexer := schema.NewIndexer(graph, schema.IndexerOptions{
		BM25Params:    textindex.BM25Params{K1: cfg.Ranking.BM25K1, B: cfg.Ranking.BM25B},
		MaxFeatures:   4000,
		CacheCapacity: cfg.Ranking.DescriptionCacheSize,
	}, logger)

	ranker := schema.NewRanker(indexer, schema.RankerConfig{
		BM25Weight:          cfg.Ranking.BM25Weight,
		CosineWeight:        cfg.Ranking.CosineWeight,
		MinScore:            cfg.Ranking.MinScore,
		SimpleTableBudget:   cfg.Ranking.SimpleTableBudget,
		ComplexTableBudget:  cfg.Ranking.ComplexTableBudget,
		ComplexityThreshold: cfg.Ranking.ComplexityThreshold,
		FallbackTables:      cfg.Ranking.FallbackTables,
	}, logger)

	retriever, err := examples.Load(cfg.ExamplesPath, examples.Options{
		TopK:      cfg.Ranking.ExampleTopK,
		Threshold: cfg.Ranking.ExampleThreshold,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load example corpus", zap.Error(err))
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.CircuitThreshold,
		ResetAfter: cfg.LLM.CircuitReset(),
	})
	client, err := llm.NewClient(llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, breaker, logger)
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	validator := sqlcheck.NewValidator(graph, cfg.Security.MaxTables)
	engine := pipeline.NewEngine(cfg, indexer, ranker, retriever, validator, client, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(engine, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting askdb-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
