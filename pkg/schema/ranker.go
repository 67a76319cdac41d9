package schema

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/textindex"
)

// RankerConfig carries the scoring weights and selection budgets.
type RankerConfig struct {
	BM25Weight          float64
	CosineWeight        float64
	MinScore            float64
	SimpleTableBudget   int
	ComplexTableBudget  int
	ComplexityThreshold float64
	FallbackTables      int
}

// DefaultRankerConfig returns the documented default policy.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		BM25Weight:          0.6,
		CosineWeight:        0.4,
		MinScore:            0.1,
		SimpleTableBudget:   4,
		ComplexTableBudget:  8,
		ComplexityThreshold: 0.3,
		FallbackTables:      3,
	}
}

// TableScore is one table's relevance breakdown for a query.
type TableScore struct {
	Table    string  `json:"table"`
	Score    float64 `json:"score"`
	BM25     float64 `json:"bm25"`
	Cosine   float64 `json:"cosine"`
	TagMatch bool    `json:"tag_match"`
	// Forced marks a table included because the query names it directly,
	// regardless of score.
	Forced bool `json:"forced,omitempty"`
}

// RankedTables is the ranker's selection for one query.
type RankedTables struct {
	Tables     []TableScore `json:"tables"`
	Complexity float64      `json:"complexity"`
	Budget     int          `json:"budget"`
	// Fallback is set when no table cleared the minimum score and the
	// selection came from raw term overlap instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Names returns the selected table names in rank order.
func (r *RankedTables) Names() []string {
	names := make([]string, len(r.Tables))
	for i, ts := range r.Tables {
		names[i] = ts.Table
	}
	return names
}

// Ranker selects the tables most relevant to a natural-language query by
// blending BM25 lexical scores with TF-IDF cosine similarity over the
// indexer's table documents.
type Ranker struct {
	index  *Indexer
	cfg    RankerConfig
	logger *zap.Logger
}

// NewRanker wires a ranker over a built schema index.
func NewRanker(index *Indexer, cfg RankerConfig, logger *zap.Logger) *Ranker {
	return &Ranker{index: index, cfg: cfg, logger: logger.Named("ranker")}
}

// Rank scores every table against the query and returns the top tables
// within the complexity-driven budget. The result is never empty for a
// non-empty query: below-threshold queries fall back to raw term overlap.
func (r *Ranker) Rank(query string) *RankedTables {
	complexity := EstimateComplexity(query)
	budget := r.cfg.SimpleTableBudget
	if complexity >= r.cfg.ComplexityThreshold {
		budget = r.cfg.ComplexTableBudget
	}

	out := &RankedTables{Complexity: complexity, Budget: budget}

	queryTokens := textindex.Tokenize(query)
	if len(queryTokens) == 0 {
		return out
	}
	tokenSet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		tokenSet[t] = true
	}

	queryVec, err := r.index.vectorizer.Transform(query)
	if err != nil {
		queryVec = nil
	}

	scores := make([]TableScore, 0, len(r.index.tableNames))
	for _, name := range r.index.tableNames {
		ts := TableScore{
			Table:  name,
			BM25:   r.index.bm25Score(queryTokens, name),
			Forced: r.mentionsTable(tokenSet, name),
		}
		if queryVec != nil {
			ts.Cosine = r.index.cosineScore(queryVec, name)
		}
		ts.Score = r.cfg.BM25Weight*ts.BM25 + r.cfg.CosineWeight*ts.Cosine
		for _, tag := range r.index.graph.Tables[name].Tags {
			if tokenSet[strings.ToLower(tag)] {
				ts.TagMatch = true
				break
			}
		}
		scores = append(scores, ts)
	}

	// Tag matches outrank score; score desc; name asc keeps order stable.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].TagMatch != scores[j].TagMatch {
			return scores[i].TagMatch
		}
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Table < scores[j].Table
	})

	for _, ts := range scores {
		if len(out.Tables) >= budget && !ts.Forced {
			continue
		}
		if ts.Score >= r.cfg.MinScore || ts.Forced {
			out.Tables = append(out.Tables, ts)
		}
	}

	if len(out.Tables) == 0 {
		out.Tables = r.fallbackByOverlap(queryTokens)
		out.Fallback = true
	}

	r.logger.Debug("tables ranked",
		zap.Int("selected", len(out.Tables)),
		zap.Float64("complexity", complexity),
		zap.Bool("fallback", out.Fallback))
	return out
}

// mentionsTable reports whether the query names the table directly, either
// exactly or as the singular form of a plural table name.
func (r *Ranker) mentionsTable(tokenSet map[string]bool, table string) bool {
	lower := strings.ToLower(table)
	if tokenSet[lower] {
		return true
	}
	if strings.HasSuffix(lower, "s") && tokenSet[strings.TrimSuffix(lower, "s")] {
		return true
	}
	return false
}

// fallbackByOverlap returns the tables sharing the most raw tokens with the
// query, so downstream stages always receive a non-empty selection.
func (r *Ranker) fallbackByOverlap(queryTokens []string) []TableScore {
	type overlapped struct {
		table   string
		overlap int
	}
	ranked := make([]overlapped, 0, len(r.index.tableNames))
	for _, name := range r.index.tableNames {
		ranked = append(ranked, overlapped{table: name, overlap: r.index.overlap(queryTokens, name)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].overlap != ranked[j].overlap {
			return ranked[i].overlap > ranked[j].overlap
		}
		return ranked[i].table < ranked[j].table
	})

	k := r.cfg.FallbackTables
	if k <= 0 {
		k = 3
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]TableScore, 0, k)
	for _, o := range ranked[:k] {
		out = append(out, TableScore{Table: o.table, Score: 0})
	}
	return out
}
