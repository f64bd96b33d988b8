package actor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/renbytes/uroboros/internal/embedding"
	"github.com/renbytes/uroboros/internal/memory"
	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/modelgateway/fakegateway"
	"github.com/renbytes/uroboros/internal/types"
)

func TestActor_Solve_OverwritesTaskID(t *testing.T) {
	gw := fakegateway.New()
	gw.QueueStructured("Solution", map[string]any{
		"task_id": "whatever-the-model-said",
		"patches": []map[string]any{
			{"file_path": "main.go", "full_content": "package main\n", "explanation": "stub"},
		},
		"reasoning": "minimal stub",
	}, nil)

	a := &Actor{Gateway: gw, Model: "test-model"}
	task := types.Task{ID: "task-123", Description: "write a stub"}

	sol, err := a.Solve(context.Background(), task)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.TaskID != "task-123" {
		t.Fatalf("expected orchestrator-owned task id to win, got %q", sol.TaskID)
	}
	if len(sol.Patches) != 1 || sol.Patches[0].FilePath != "main.go" {
		t.Fatalf("unexpected patches: %+v", sol.Patches)
	}
}

func TestActor_Solve_UsesPromptProvider(t *testing.T) {
	gw := fakegateway.New()
	var gotSystemPrompt string
	gw.DefaultStructured = func(_ context.Context, req modelgateway.StructuredRequest) (json.RawMessage, error) {
		gotSystemPrompt = req.SystemPrompt
		return json.Marshal(map[string]any{
			"task_id":   "t",
			"patches":   []map[string]any{},
			"reasoning": "none needed",
		})
	}

	a := &Actor{
		Gateway:        gw,
		PromptProvider: func() string { return "custom system prompt" },
	}
	_, err := a.Solve(context.Background(), types.Task{ID: "t"})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if gotSystemPrompt != "custom system prompt" {
		t.Fatalf("expected the PromptProvider's prompt as system prompt, got %q", gotSystemPrompt)
	}
}

func TestActor_Solve_FallsBackWithoutMemory(t *testing.T) {
	gw := fakegateway.New()
	gw.QueueStructured("Solution", map[string]any{
		"task_id":   "t",
		"patches":   []map[string]any{},
		"reasoning": "ok",
	}, nil)

	store := memory.NewInMemoryVectorStore()
	mem := memory.New(embedding.NewLocal(16), store, nil, nil, "test")

	a := &Actor{Gateway: gw, Memory: mem}
	_, err := a.Solve(context.Background(), types.Task{ID: "t", Description: "solve it"})
	if err != nil {
		t.Fatalf("Solve with empty memory should not fail: %v", err)
	}
}
