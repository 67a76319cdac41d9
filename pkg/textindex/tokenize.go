// Package textindex provides the lexical and semantic text-scoring
// primitives shared by the table ranker and the example retriever:
// tokenization, TF-IDF vectorization with cosine similarity, and BM25.
package textindex

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// stopWords are high-frequency English terms excluded from vectorization.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true, "me": true, "my": true, "our": true,
	"all": true, "do": true, "does": true, "not": true, "no": true, "so": true,
	"can": true, "what": true, "which": true, "who": true, "how": true,
}

// Tokenize splits text into lowercase word tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// TokenizeFiltered tokenizes and drops stop words. Used for vectorization;
// BM25 keeps raw tokens so term frequencies stay comparable across documents.
func TokenizeFiltered(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0:0]
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

// IsStopWord reports whether a token is in the stop-word list.
func IsStopWord(token string) bool {
	return stopWords[token]
}
