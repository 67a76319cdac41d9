package textindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "lowercases and splits words",
			input:    "Show Me ALL accounts",
			expected: []string{"show", "me", "all", "accounts"},
		},
		{
			name:     "strips punctuation",
			input:    "balance, status; and (amount)",
			expected: []string{"balance", "status", "and", "amount"},
		},
		{
			name:     "keeps underscores and digits",
			input:    "accounts_entity_id = 42",
			expected: []string{"accounts_entity_id", "42"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestTokenizeFiltered(t *testing.T) {
	tokens := TokenizeFiltered("show me the total of all payments")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "of")
	assert.Contains(t, tokens, "total")
	assert.Contains(t, tokens, "payments")
}

func TestVectorizerTransformBeforeFit(t *testing.T) {
	v := NewVectorizer(0)
	_, err := v.Transform("anything")
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestVectorizerCosineSelfSimilarity(t *testing.T) {
	docs := []string{
		"accounts balance status money",
		"transactions payments transfers amounts",
		"entities companies countries names",
	}
	v := NewVectorizer(0)
	v.Fit(docs)
	require.True(t, v.Fitted())

	vec, err := v.Transform(docs[0])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Cosine(vec, vec), 1e-9)

	other, err := v.Transform(docs[1])
	require.NoError(t, err)
	assert.Less(t, Cosine(vec, other), 0.5)
}

func TestVectorizerDeterministic(t *testing.T) {
	docs := []string{"alpha beta gamma", "beta gamma delta", "gamma delta epsilon"}

	v1 := NewVectorizer(0)
	v1.Fit(docs)
	v2 := NewVectorizer(0)
	v2.Fit(docs)

	a, err := v1.Transform("beta gamma")
	require.NoError(t, err)
	b, err := v2.Transform("beta gamma")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVectorizerMaxFeatures(t *testing.T) {
	docs := []string{"common rare1", "common rare2", "common rare3"}
	v := NewVectorizer(1)
	v.Fit(docs)

	vec, err := v.Transform("common rare1")
	require.NoError(t, err)
	// Only the highest-document-frequency term survives the cap.
	assert.Len(t, vec, 1)
}

func TestCosineEdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestBM25ScoresMatchingDocHigher(t *testing.T) {
	docs := []string{
		"accounts accounts accounts balance status",
		"transactions payments amounts",
		"entities companies",
	}
	idx := NewBM25Index(docs, DefaultBM25Params())
	require.Equal(t, 3, idx.Len())

	query := Tokenize("account balance")
	assert.Greater(t, idx.Score(query, 0), idx.Score(query, 1))
	assert.Greater(t, idx.Score(query, 0), idx.Score(query, 2))
}

func TestBM25EmptyAndOutOfRange(t *testing.T) {
	idx := NewBM25Index([]string{"one doc"}, DefaultBM25Params())
	assert.Equal(t, 0.0, idx.Score(nil, 0))
	assert.Equal(t, 0.0, idx.Score([]string{"doc"}, 5))
	assert.Equal(t, 0.0, idx.Score([]string{"doc"}, -1))
}

func TestBM25Overlap(t *testing.T) {
	idx := NewBM25Index([]string{"alpha beta gamma"}, DefaultBM25Params())
	assert.Equal(t, 2, idx.Overlap([]string{"alpha", "gamma", "zeta"}, 0))
	assert.Equal(t, 0, idx.Overlap([]string{"zeta"}, 0))
}
