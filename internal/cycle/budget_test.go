package cycle

import (
	"errors"
	"testing"
)

func TestAttemptBudget_AllowsUpToMax(t *testing.T) {
	b := NewAttemptBudget(2)
	if err := b.Check(); err != nil {
		t.Fatalf("Check 1: %v", err)
	}
	if err := b.Check(); err != nil {
		t.Fatalf("Check 2: %v", err)
	}
	err := b.Check()
	if err == nil {
		t.Fatalf("expected budget exceeded on 3rd check")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestAttemptBudget_ZeroMeansUnlimited(t *testing.T) {
	b := NewAttemptBudget(0)
	for i := 0; i < 100; i++ {
		if err := b.Check(); err != nil {
			t.Fatalf("unexpected error at check %d: %v", i, err)
		}
	}
}
