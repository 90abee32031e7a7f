// Package admin runs the writes that follow a primary admin mutation.
package admin

import (
	"context"
	"fmt"

	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Step is one dependent write. A critical step aborts the remaining steps and
// its error is returned; a best-effort step's failure becomes a Warning.
type Step struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

// Warning reports a best-effort step that failed after the primary write succeeded.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// RunDependents runs steps in order. Best-effort failures are logged, counted
// and returned as warnings so the admin caller can see them.
func RunDependents(ctx context.Context, steps ...Step) ([]Warning, error) {
	var warnings []Warning
	for _, step := range steps {
		if step.Run == nil {
			continue
		}
		err := step.Run(ctx)
		if err == nil {
			continue
		}

		metrics.DependentStepFailures.WithLabelValues(step.Name).Inc()
		if step.Critical {
			log.Error().Err(err).Str("step", step.Name).Msg("Critical dependent step failed")
			return warnings, fmt.Errorf("%s: %w", step.Name, err)
		}

		log.Error().Err(err).Str("step", step.Name).Msg("Dependent step failed")
		warnings = append(warnings, Warning{Step: step.Name, Message: err.Error()})
	}
	return warnings, nil
}
