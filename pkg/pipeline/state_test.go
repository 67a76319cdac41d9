package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

func TestNextState(t *testing.T) {
	valid := &sqlcheck.Result{IsValid: true}
	invalid := &sqlcheck.Result{IsValid: false}

	tests := []struct {
		name     string
		result   *sqlcheck.Result
		attempt  int
		max      int
		expected State
	}{
		{"valid accepts on first attempt", valid, 1, 3, StateAccept},
		{"valid accepts on last attempt", valid, 3, 3, StateAccept},
		{"invalid refines with attempts left", invalid, 1, 3, StateRefine},
		{"invalid refines on second attempt", invalid, 2, 3, StateRefine},
		{"invalid gives up at the cap", invalid, 3, 3, StateGiveUp},
		{"invalid gives up past the cap", invalid, 4, 3, StateGiveUp},
		{"nil result counts as invalid", nil, 3, 3, StateGiveUp},
		{"single attempt budget", invalid, 1, 1, StateGiveUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextState(tt.result, tt.attempt, tt.max))
		})
	}
}

// The transition function can never loop forever: for any validation outcome
// the attempt counter reaches the cap and forces a terminal state.
func TestNextStateTerminates(t *testing.T) {
	invalid := &sqlcheck.Result{IsValid: false}
	max := 3

	transitions := 0
	for attempt := 1; ; attempt++ {
		s := NextState(invalid, attempt, max)
		transitions++
		if s == StateGiveUp || s == StateAccept {
			break
		}
		assert.Equal(t, StateRefine, s)
	}
	assert.Equal(t, max, transitions)
}
