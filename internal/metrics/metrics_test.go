package metrics

import (
	"testing"

	"github.com/renbytes/uroboros/internal/types"
)

func TestComputeRunMetrics_Tally(t *testing.T) {
	results := []types.TestResult{
		{Status: types.TestPassed, DurationMS: 100},
		{Status: types.TestPassed, DurationMS: 200},
		{Status: types.TestFailed, DurationMS: 50},
		{Status: types.TestError, DurationMS: 10},
		{Status: types.TestSkipped, DurationMS: 0},
	}
	m := ComputeRunMetrics(results)
	if m.Total != 5 || m.Passed != 2 || m.Failed != 1 || m.Errored != 1 || m.Skipped != 1 {
		t.Fatalf("unexpected tally: %+v", m)
	}
	if m.SuccessRate != 0.4 {
		t.Fatalf("expected success rate 0.4, got %f", m.SuccessRate)
	}
	if m.AvgDurationMS != 72 {
		t.Fatalf("expected avg duration 72, got %f", m.AvgDurationMS)
	}
}

func TestComputeRunMetrics_Empty(t *testing.T) {
	m := ComputeRunMetrics(nil)
	if m.Total != 0 || m.SuccessRate != 0 {
		t.Fatalf("expected zero-value metrics, got %+v", m)
	}
}

func TestEvaluatePassAtK(t *testing.T) {
	if EvaluatePassAtK([]bool{false, false, true}) != 1.0 {
		t.Fatalf("expected 1.0 when any attempt passed")
	}
	if EvaluatePassAtK([]bool{false, false}) != 0.0 {
		t.Fatalf("expected 0.0 when no attempt passed")
	}
	if EvaluatePassAtK(nil) != 0.0 {
		t.Fatalf("expected 0.0 for empty input")
	}
}

func TestMeanAttempts(t *testing.T) {
	if got := MeanAttempts([]int{1, 2, 3}); got != 2.0 {
		t.Fatalf("expected mean 2.0, got %f", got)
	}
	if got := MeanAttempts(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
}
