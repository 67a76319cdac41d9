package schema

import "github.com/askdb-inc/askdb-engine/pkg/textindex"

// complexityIndicators are query words that suggest multi-table analytical
// intent: aggregation, comparison, grouping, time windows.
var complexityIndicators = map[string]bool{
	"average":      true,
	"aggregate":    true,
	"breakdown":    true,
	"compare":      true,
	"comparison":   true,
	"correlate":    true,
	"count":        true,
	"distribution": true,
	"group":        true,
	"grouped":      true,
	"join":         true,
	"maximum":      true,
	"minimum":      true,
	"monthly":      true,
	"per":          true,
	"percentage":   true,
	"quarterly":    true,
	"rank":         true,
	"ratio":        true,
	"sum":          true,
	"total":        true,
	"trend":        true,
	"weekly":       true,
	"yearly":       true,
}

// EstimateComplexity scores how analytically involved a query looks, on a
// 0..1 scale: one tenth per distinct indicator word, capped at 1.
func EstimateComplexity(query string) float64 {
	seen := make(map[string]bool)
	for _, tok := range textindex.Tokenize(query) {
		if complexityIndicators[tok] {
			seen[tok] = true
		}
	}
	score := float64(len(seen)) / 10
	if score > 1 {
		score = 1
	}
	return score
}
