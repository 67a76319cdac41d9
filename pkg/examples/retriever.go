// Package examples retrieves few-shot (question, SQL) pairs similar to the
// incoming query. Retrieval is advisory context for prompt construction;
// every failure mode here degrades to zero examples rather than an error.
package examples

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/askdb-inc/askdb-engine/pkg/textindex"
)

// Example is one curated question/SQL pair from the corpus.
type Example struct {
	Question string `yaml:"question" json:"question"`
	SQL      string `yaml:"sql" json:"sql"`
}

// Match is a retrieved example with its similarity to the query.
type Match struct {
	Example
	Similarity float64 `json:"similarity"`
}

type corpusDocument struct {
	Examples []Example `yaml:"examples"`
}

// Retriever finds corpus examples by TF-IDF cosine similarity over the
// example questions. Built once at startup and shared read-only.
type Retriever struct {
	examples   []Example
	vectorizer *textindex.Vectorizer
	vectors    [][]float64
	logger     *zap.Logger

	topK      int
	threshold float64
}

// Options tunes retrieval.
type Options struct {
	TopK      int
	Threshold float64
}

// DefaultOptions returns the documented retrieval defaults.
func DefaultOptions() Options {
	return Options{TopK: 4, Threshold: 0.2}
}

// Load reads the example corpus and builds a retriever over it. A missing
// file is treated as an empty corpus, not an error.
func Load(path string, opts Options, logger *zap.Logger) (*Retriever, error) {
	log := logger.Named("examples")

	if path == "" {
		log.Info("no example corpus configured")
		return New(nil, opts, logger), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("example corpus not found, retrieval disabled", zap.String("path", path))
			return New(nil, opts, logger), nil
		}
		return nil, fmt.Errorf("reading example corpus %s: %w", path, err)
	}

	var doc corpusDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing example corpus %s: %w", path, err)
	}
	return New(doc.Examples, opts, logger), nil
}

// New builds a retriever over an in-memory corpus.
func New(corpus []Example, opts Options, logger *zap.Logger) *Retriever {
	r := &Retriever{
		examples:  corpus,
		logger:    logger.Named("examples"),
		topK:      opts.TopK,
		threshold: opts.Threshold,
	}
	if r.topK <= 0 {
		r.topK = DefaultOptions().TopK
	}
	if len(corpus) == 0 {
		return r
	}

	docs := make([]string, len(corpus))
	for i, ex := range corpus {
		docs[i] = ex.Question
	}
	r.vectorizer = textindex.NewVectorizer(0)
	r.vectorizer.Fit(docs)

	r.vectors = make([][]float64, len(docs))
	for i, doc := range docs {
		vec, err := r.vectorizer.Transform(doc)
		if err != nil {
			r.logger.Warn("example vectorization failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		r.vectors[i] = vec
	}

	r.logger.Info("example corpus loaded", zap.Int("examples", len(corpus)))
	return r
}

// Len returns the corpus size.
func (r *Retriever) Len() int {
	return len(r.examples)
}

// Retrieve returns up to topK examples whose questions clear the similarity
// threshold, most similar first. An empty or unfitted corpus yields nil.
func (r *Retriever) Retrieve(query string) []Match {
	if len(r.examples) == 0 || r.vectorizer == nil || !r.vectorizer.Fitted() {
		return nil
	}
	queryVec, err := r.vectorizer.Transform(query)
	if err != nil {
		return nil
	}

	matches := make([]Match, 0, len(r.examples))
	for i, ex := range r.examples {
		if r.vectors[i] == nil {
			continue
		}
		sim := textindex.Cosine(queryVec, r.vectors[i])
		if sim >= r.threshold {
			matches = append(matches, Match{Example: ex, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Question < matches[j].Question
	})
	if len(matches) > r.topK {
		matches = matches[:r.topK]
	}
	return matches
}
