package textindex

import "math"

// BM25Params holds the free parameters of the BM25 ranking function.
type BM25Params struct {
	K1 float64 // term-frequency saturation
	B  float64 // length normalization
}

// DefaultBM25Params returns the standard parameter defaults.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

// BM25Index scores queries against a fixed document corpus using BM25.
// Build once, then score concurrently; the index is immutable after New.
type BM25Index struct {
	params    BM25Params
	docTokens [][]string
	docFreq   []map[string]int // per-doc term counts
	termDF    map[string]int   // corpus document frequency per term
	avgDocLen float64
}

// NewBM25Index tokenizes the documents and precomputes term statistics.
func NewBM25Index(docs []string, params BM25Params) *BM25Index {
	idx := &BM25Index{
		params:    params,
		docTokens: make([][]string, len(docs)),
		docFreq:   make([]map[string]int, len(docs)),
		termDF:    make(map[string]int),
	}

	var totalLen int
	for i, doc := range docs {
		tokens := Tokenize(doc)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		counts := make(map[string]int, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		idx.docFreq[i] = counts
		for term := range counts {
			idx.termDF[term]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Len returns the number of documents in the index.
func (idx *BM25Index) Len() int {
	return len(idx.docTokens)
}

// Score computes the BM25 score of the query tokens against document i.
func (idx *BM25Index) Score(queryTokens []string, i int) float64 {
	if i < 0 || i >= len(idx.docTokens) || len(queryTokens) == 0 {
		return 0
	}
	counts := idx.docFreq[i]
	docLen := float64(len(idx.docTokens[i]))
	if docLen == 0 || idx.avgDocLen == 0 {
		return 0
	}

	n := float64(len(idx.docTokens))
	k1, b := idx.params.K1, idx.params.B

	var score float64
	for _, term := range queryTokens {
		tf := float64(counts[term])
		if tf == 0 {
			continue
		}
		df := float64(idx.termDF[term])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		score += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*(docLen/idx.avgDocLen)))
	}
	return score
}

// Overlap returns the count of query tokens present in document i.
// Used as the last-resort ranking signal when no document clears the
// minimum BM25/cosine score.
func (idx *BM25Index) Overlap(queryTokens []string, i int) int {
	if i < 0 || i >= len(idx.docTokens) {
		return 0
	}
	counts := idx.docFreq[i]
	overlap := 0
	for _, term := range queryTokens {
		if counts[term] > 0 {
			overlap++
		}
	}
	return overlap
}
