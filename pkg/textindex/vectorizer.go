package textindex

import (
	"errors"
	"math"
	"sort"
)

// ErrNotFitted indicates Transform was called before Fit.
var ErrNotFitted = errors.New("vectorizer not fitted")

// Vectorizer converts text into L2-normalized TF-IDF vectors over a
// vocabulary learned from a fitted corpus. A fitted Vectorizer is immutable
// and safe for concurrent use; refitting requires a new instance.
type Vectorizer struct {
	// MaxFeatures caps vocabulary size; the highest-document-frequency terms
	// win, ties broken alphabetically for determinism. Zero means unlimited.
	MaxFeatures int

	vocab  map[string]int // term -> dimension index
	idf    []float64
	fitted bool
}

// NewVectorizer creates a vectorizer with the given vocabulary cap.
func NewVectorizer(maxFeatures int) *Vectorizer {
	return &Vectorizer{MaxFeatures: maxFeatures}
}

// Fitted reports whether Fit has been called with a non-empty corpus.
func (v *Vectorizer) Fitted() bool {
	return v.fitted
}

// Fit learns the vocabulary and inverse document frequencies from the corpus.
func (v *Vectorizer) Fit(docs []string) {
	if len(docs) == 0 {
		return
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, tok := range TokenizeFiltered(doc) {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	// Deterministic vocabulary: by document frequency desc, then term asc.
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocab[term] = i
		// Smoothed IDF, matching the conventional tf-idf formulation.
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	v.fitted = true
}

// Transform converts text into an L2-normalized TF-IDF vector.
func (v *Vectorizer) Transform(text string) ([]float64, error) {
	if !v.fitted {
		return nil, ErrNotFitted
	}

	vec := make([]float64, len(v.idf))
	for _, tok := range TokenizeFiltered(text) {
		if idx, ok := v.vocab[tok]; ok {
			vec[idx]++
		}
	}

	var norm float64
	for i := range vec {
		if vec[i] > 0 {
			vec[i] *= v.idf[i]
			norm += vec[i] * vec[i]
		}
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two equal-length vectors.
// Returns 0 for mismatched lengths or zero vectors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
