package adversary

import (
	"context"
	"testing"
	"time"

	"github.com/renbytes/uroboros/internal/modelgateway/fakegateway"
	"github.com/renbytes/uroboros/internal/types"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestAdversary_GenerateCurriculum_SetsIDAndDefaults(t *testing.T) {
	gw := fakegateway.New()
	gw.QueueStructured("CurriculumPlan", map[string]any{
		"description":  "implement a stack",
		"requirements": []string{"push", "pop", "peek"},
	}, nil)

	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Adversary{Gateway: gw, Clock: fixedClock(want)}

	task, err := a.GenerateCurriculum(context.Background(), 2)
	if err != nil {
		t.Fatalf("GenerateCurriculum: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("expected a generated task id")
	}
	if task.Status != types.TaskPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
	if task.Difficulty != 2 {
		t.Fatalf("expected difficulty 2, got %d", task.Difficulty)
	}
	if !task.CreatedAt.Equal(want) {
		t.Fatalf("expected fixed clock time, got %v", task.CreatedAt)
	}
	if len(task.Requirements) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(task.Requirements))
	}
}

func TestAdversary_GenerateCurriculum_DifficultyTiers(t *testing.T) {
	cases := []struct {
		difficulty int
		wantTier   string
	}{
		{1, "basic algorithms and data structures"},
		{3, "basic algorithms and data structures"},
		{4, "system design, APIs, and multi-file refactoring"},
		{7, "system design, APIs, and multi-file refactoring"},
		{8, "concurrency, security vulnerabilities (SQLi, XSS), and optimization"},
		{10, "concurrency, security vulnerabilities (SQLi, XSS), and optimization"},
	}
	for _, tc := range cases {
		if got := difficultyTier(tc.difficulty); got != tc.wantTier {
			t.Fatalf("difficultyTier(%d) = %q, want %q", tc.difficulty, got, tc.wantTier)
		}
	}
}

func TestAdversary_GenerateAdversarialTests_ReturnsPlanFiles(t *testing.T) {
	gw := fakegateway.New()
	gw.QueueStructured("AdversarialTestPlan", map[string]any{
		"test_files": []map[string]any{
			{"path": "test_edge.py", "content": "def test_edge():\n    assert True\n", "language": "python"},
		},
		"reasoning": "cover the boundary",
	}, nil)

	a := &Adversary{Gateway: gw}
	task := types.Task{Description: "implement a stack"}
	solution := types.Solution{TaskID: "t", Patches: []types.Patch{{FilePath: "stack.py", FullContent: "class Stack: ..."}}}

	files, err := a.GenerateAdversarialTests(context.Background(), task, solution)
	if err != nil {
		t.Fatalf("GenerateAdversarialTests: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 test file, got %d", len(files))
	}
	if files[0].Path != "test_edge.py" || files[0].Content != "def test_edge():\n    assert True\n" {
		t.Fatalf("expected the plan's file to round-trip verbatim, got %+v", files[0])
	}
}
