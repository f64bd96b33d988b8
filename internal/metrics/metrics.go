// Package metrics is a supplemental, optional aggregation layer over
// completed cycles: success rate, mean attempts, and a pass@k estimate.
// Grounded on original_source/arbiter/metrics.py's RunMetrics /
// MetricsEngine.compute_run_metrics / evaluate_pass_at_k, present in the
// original implementation but outside the four core subsystems the spec
// names. Never required for a cycle to complete.
package metrics

import (
	"math"

	"github.com/renbytes/uroboros/internal/types"
)

// RunMetrics summarizes a batch of TestResults.
type RunMetrics struct {
	Total         int
	Passed        int
	Failed        int
	Errored       int
	Skipped       int
	SuccessRate   float64
	AvgDurationMS float64
}

// ComputeRunMetrics tallies a batch of TestResults into a RunMetrics.
// SuccessRate is Passed/Total (zero when Total == 0).
func ComputeRunMetrics(results []types.TestResult) RunMetrics {
	m := RunMetrics{Total: len(results)}
	if m.Total == 0 {
		return m
	}
	var totalDuration int64
	for _, r := range results {
		totalDuration += r.DurationMS
		switch r.Status {
		case types.TestPassed:
			m.Passed++
		case types.TestFailed:
			m.Failed++
		case types.TestError:
			m.Errored++
		case types.TestSkipped:
			m.Skipped++
		}
	}
	m.SuccessRate = float64(m.Passed) / float64(m.Total)
	m.AvgDurationMS = float64(totalDuration) / float64(m.Total)
	return m
}

// EvaluatePassAtK implements the original's MVP definition: 1.0 if any of
// the k solution attempts passed, else 0.0.
func EvaluatePassAtK(passed []bool) float64 {
	for _, p := range passed {
		if p {
			return 1.0
		}
	}
	return 0.0
}

// MeanAttempts averages a series of per-task attempt counts, rounding to
// two decimal places for stable display.
func MeanAttempts(attempts []int) float64 {
	if len(attempts) == 0 {
		return 0
	}
	var sum int
	for _, a := range attempts {
		sum += a
	}
	mean := float64(sum) / float64(len(attempts))
	return math.Round(mean*100) / 100
}
