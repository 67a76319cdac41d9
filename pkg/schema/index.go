package schema

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/textindex"
)

// Indexer derives the searchable artifacts from a Graph: one weighted text
// document per table, a BM25 index over those documents, and a fitted
// TF-IDF vectorizer with precomputed per-table vectors. All state is built
// in NewIndexer and read-only afterwards, so an Indexer is safe to share
// across concurrent requests; a schema reload builds a fresh Indexer.
type Indexer struct {
	graph  *Graph
	logger *zap.Logger

	tableNames []string // sorted; positions align with documents
	documents  []string
	docIndex   map[string]int

	bm25       *textindex.BM25Index
	vectorizer *textindex.Vectorizer
	tableVecs  [][]float64

	descriptions *LRU
}

// IndexerOptions tunes document vectorization and caching.
type IndexerOptions struct {
	BM25Params    textindex.BM25Params
	MaxFeatures   int
	CacheCapacity int
}

// DefaultIndexerOptions returns the documented defaults.
func DefaultIndexerOptions() IndexerOptions {
	return IndexerOptions{
		BM25Params:    textindex.DefaultBM25Params(),
		MaxFeatures:   4000,
		CacheCapacity: 100,
	}
}

// NewIndexer builds table documents and both scoring indexes from the graph.
func NewIndexer(graph *Graph, opts IndexerOptions, logger *zap.Logger) *Indexer {
	idx := &Indexer{
		graph:        graph,
		logger:       logger.Named("schema-index"),
		tableNames:   graph.TableNames(),
		docIndex:     make(map[string]int),
		descriptions: NewLRU(opts.CacheCapacity),
	}

	idx.documents = make([]string, len(idx.tableNames))
	for i, name := range idx.tableNames {
		idx.docIndex[name] = i
		idx.documents[i] = idx.buildDocument(graph.Tables[name])
	}

	idx.bm25 = textindex.NewBM25Index(idx.documents, opts.BM25Params)
	idx.vectorizer = textindex.NewVectorizer(opts.MaxFeatures)
	idx.vectorizer.Fit(idx.documents)

	idx.tableVecs = make([][]float64, len(idx.documents))
	for i, doc := range idx.documents {
		vec, err := idx.vectorizer.Transform(doc)
		if err != nil {
			// Only possible with an empty corpus, which validate() excludes.
			idx.logger.Warn("table vectorization failed", zap.String("table", idx.tableNames[i]), zap.Error(err))
			continue
		}
		idx.tableVecs[i] = vec
	}

	idx.logger.Info("schema index built",
		zap.Int("tables", len(idx.tableNames)),
		zap.Int("relationships", len(graph.Relationships)))
	return idx
}

// buildDocument produces the weighted text representation of a table:
// name (tripled for weight), description, column names, tags, and any
// keyword mappings pointing at the table.
func (idx *Indexer) buildDocument(t *Table) string {
	var parts []string
	parts = append(parts, t.Name, t.Name, t.Name)
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	for _, c := range t.Columns {
		parts = append(parts, strings.ReplaceAll(c.Name, "_", " "))
	}
	parts = append(parts, t.Tags...)
	for keyword, tables := range idx.graph.Keywords {
		for _, name := range tables {
			if name == t.Name {
				parts = append(parts, keyword)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Graph returns the underlying schema graph.
func (idx *Indexer) Graph() *Graph {
	return idx.graph
}

// Document returns the derived text document for a table.
func (idx *Indexer) Document(table string) (string, bool) {
	i, ok := idx.docIndex[table]
	if !ok {
		return "", false
	}
	return idx.documents[i], true
}

// bm25Score scores query tokens against a table's document.
func (idx *Indexer) bm25Score(queryTokens []string, table string) float64 {
	i, ok := idx.docIndex[table]
	if !ok {
		return 0
	}
	return idx.bm25.Score(queryTokens, i)
}

// cosineScore scores the query vector against a table's document vector.
func (idx *Indexer) cosineScore(queryVec []float64, table string) float64 {
	i, ok := idx.docIndex[table]
	if !ok || idx.tableVecs[i] == nil {
		return 0
	}
	return textindex.Cosine(queryVec, idx.tableVecs[i])
}

// overlap counts query tokens appearing in a table's document.
func (idx *Indexer) overlap(queryTokens []string, table string) int {
	i, ok := idx.docIndex[table]
	if !ok {
		return 0
	}
	return idx.bm25.Overlap(queryTokens, i)
}

// DescribeTables renders the schema-context block for the given tables,
// caching by table set and query context so repeated combinations skip the
// string assembly. The rendered block lists each table's columns, its
// scoping column when scoped, and the relationships touching the set.
func (idx *Indexer) DescribeTables(tables []string, queryContext string) string {
	key := DescriptionKey(tables, queryContext)
	if cached, ok := idx.descriptions.Get(key); ok {
		return cached
	}

	var b strings.Builder
	b.WriteString("Database Schema:\n\n")
	for _, name := range tables {
		t, ok := idx.graph.Tables[name]
		if !ok {
			continue
		}
		b.WriteString("Table: " + name + "\n")
		if t.Description != "" {
			b.WriteString("Description: " + t.Description + "\n")
		}
		b.WriteString("Columns: " + strings.Join(t.ColumnNames(), ", ") + "\n")
		if t.Scoped {
			b.WriteString("Scoped: " + idx.graph.ScopingColumn(name) + "\n")
		}
		b.WriteString("\n")
	}

	rels := idx.graph.RelationshipsTouching(tables)
	if len(rels) > 0 {
		b.WriteString("Key Relationships:\n")
		for _, rel := range rels {
			toCol := rel.ToColumn
			if toCol == "" {
				toCol = "id"
			}
			b.WriteString(rel.FromTable + "." + rel.FromColumn + " -> " + rel.ToTable + "." + toCol + "\n")
		}
	}

	desc := b.String()
	idx.descriptions.Put(key, desc)
	return desc
}

// DescriptionCacheLen exposes cache occupancy for diagnostics and tests.
func (idx *Indexer) DescriptionCacheLen() int {
	return idx.descriptions.Len()
}

// DescriptionKey derives the cache key for a table combination plus query
// context fingerprint. Table order does not affect the key.
func DescriptionKey(tables []string, queryContext string) string {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + "|" + queryContext
}
