// Package pipeline orchestrates one natural-language-to-SQL request: table
// ranking, plan generation, SQL synthesis, validation, and the bounded
// refinement loop between them.
package pipeline

import "github.com/askdb-inc/askdb-engine/pkg/sqlcheck"

// State is one state of the refinement controller.
type State string

const (
	// StateGenerate runs plan generation and SQL synthesis.
	StateGenerate State = "generate"
	// StateValidate runs the SQL validator on the latest attempt.
	StateValidate State = "validate"
	// StateAccept terminates the loop with valid SQL.
	StateAccept State = "accept"
	// StateRefine feeds validation errors back into another generation.
	StateRefine State = "refine"
	// StateGiveUp terminates the loop with the last attempt's errors.
	StateGiveUp State = "give_up"
)

// NextState is the controller's transition function: a pure mapping from a
// validation outcome and the attempt count to the next state. Keeping it
// free of I/O makes the loop's termination properties testable on their own.
func NextState(result *sqlcheck.Result, attempt, maxAttempts int) State {
	if result != nil && result.IsValid {
		return StateAccept
	}
	if attempt >= maxAttempts {
		return StateGiveUp
	}
	return StateRefine
}

// Attempt records one pass through Generate and Validate.
type Attempt struct {
	Number int                  `json:"number"`
	SQL    string               `json:"sql,omitempty"`
	Result *sqlcheck.Result     `json:"result,omitempty"`
	Errors []string             `json:"errors,omitempty"`
	Kinds  []sqlcheck.ErrorKind `json:"kinds,omitempty"`
}
