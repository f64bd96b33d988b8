package types

import "testing"

func TestTask_WithFeedback_DoesNotMutateOriginal(t *testing.T) {
	orig := Task{ID: "t1", Description: "do the thing"}
	fed := orig.WithFeedback("PREVIOUS FAILURE FEEDBACK:\nboom")

	if orig.Description != "do the thing" {
		t.Fatalf("original task was mutated: %q", orig.Description)
	}
	want := "do the thing\n\nPREVIOUS FAILURE FEEDBACK:\nboom"
	if fed.Description != want {
		t.Fatalf("unexpected feedback description:\ngot:  %q\nwant: %q", fed.Description, want)
	}
	if fed.ID != orig.ID {
		t.Fatalf("expected ID to carry over, got %q", fed.ID)
	}
}

func TestPromptVersion_Recompute(t *testing.T) {
	tests := []struct {
		name      string
		runs      int
		successes int
		want      float64
	}{
		{"no runs", 0, 0, 0},
		{"all passed", 4, 4, 1.0},
		{"half passed", 4, 2, 0.5},
		{"none passed", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := PromptVersion{Runs: tt.runs, Successes: tt.successes}
			v.Recompute()
			if v.SuccessRate != tt.want {
				t.Fatalf("expected success rate %v, got %v", tt.want, v.SuccessRate)
			}
		})
	}
}
