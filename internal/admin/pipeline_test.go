package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunDependents_BestEffortContinues(t *testing.T) {
	var ran []string
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	before := testutil.ToFloat64(metrics.DependentStepFailures.WithLabelValues("test_license"))

	warnings, err := RunDependents(context.Background(),
		step("test_profile", nil),
		step("test_license", errors.New("boom")),
		step("test_membership", nil),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"test_profile", "test_license", "test_membership"}, ran)
	require.Equal(t, []Warning{{Step: "test_license", Message: "boom"}}, warnings)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.DependentStepFailures.WithLabelValues("test_license")))
}

func TestRunDependents_CriticalAborts(t *testing.T) {
	ranLast := false
	warnings, err := RunDependents(context.Background(),
		Step{Name: "soft", Run: func(context.Context) error { return errors.New("soft failure") }},
		Step{Name: "hard", Critical: true, Run: func(context.Context) error { return errors.New("hard failure") }},
		Step{Name: "last", Run: func(context.Context) error { ranLast = true; return nil }},
	)
	require.ErrorContains(t, err, "hard: hard failure")
	require.Len(t, warnings, 1)
	require.False(t, ranLast)
}

func TestRunDependents_NoSteps(t *testing.T) {
	warnings, err := RunDependents(context.Background(), Step{Name: "skipped"})
	require.NoError(t, err)
	require.Empty(t, warnings)
}
