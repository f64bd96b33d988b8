// Package adversary implements the Adversary: the subsystem that invents
// Tasks for the Actor to solve and, once a Solution exists, writes
// adversarial tests meant to expose its weaknesses. Grounded on the
// original adversary/generator.py's InfCodeAdversary (difficulty-tiered
// curriculum generation, AdversarialTestPlan-shaped test generation).
package adversary

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/types"
)

type curriculumPlan struct {
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
}

var curriculumSchema = map[string]any{
	"type":     "object",
	"required": []any{"description", "requirements"},
	"properties": map[string]any{
		"description":  map[string]any{"type": "string"},
		"requirements": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var curriculumCompiled *jsonschema.Schema

type adversarialTestPlan struct {
	TestFiles []types.FileArtifact `json:"test_files"`
	Reasoning string               `json:"reasoning"`
}

var testPlanSchema = map[string]any{
	"type":     "object",
	"required": []any{"test_files", "reasoning"},
	"properties": map[string]any{
		"test_files": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"path", "content", "language"},
				"properties": map[string]any{
					"path":     map[string]any{"type": "string"},
					"content":  map[string]any{"type": "string"},
					"language": map[string]any{"type": "string"},
				},
			},
		},
		"reasoning": map[string]any{"type": "string"},
	},
}

var testPlanCompiled *jsonschema.Schema

func init() {
	c, err := modelgateway.CompileSchema("CurriculumPlan", curriculumSchema)
	if err != nil {
		panic(err)
	}
	curriculumCompiled = c

	c, err = modelgateway.CompileSchema("AdversarialTestPlan", testPlanSchema)
	if err != nil {
		panic(err)
	}
	testPlanCompiled = c
}

// Adversary generates Tasks and adversarial tests via schema-constrained
// Model Gateway calls.
type Adversary struct {
	Gateway modelgateway.Gateway
	Model   string

	// Clock returns the current time. Defaults to time.Now; tests may
	// override it for deterministic Task.CreatedAt values.
	Clock func() time.Time

	Logger *log.Logger
}

// GenerateCurriculum invents a new Task at the requested difficulty
// (1-10). Difficulty bands and their prompt wording follow the original's
// generate_curriculum system prompt verbatim (spec §4.2).
func (a *Adversary) GenerateCurriculum(ctx context.Context, difficulty int) (types.Task, error) {
	tier := difficultyTier(difficulty)

	req := modelgateway.StructuredRequest{
		SystemPrompt: fmt.Sprintf("You are the Taskmaster for an AI Software Engineer.\n"+
			"Your goal is to generate a coding challenge that pushes the agent's limits.\n"+
			"Current Difficulty Level: %d/10.\n\n"+
			"- For Level 1-3: Focus on basic algorithms and data structures.\n"+
			"- For Level 4-7: Focus on system design, APIs, and multi-file refactoring.\n"+
			"- For Level 8-10: Focus on concurrency, security vulnerabilities (SQLi, XSS), and optimization.", difficulty),
		UserPrompt: fmt.Sprintf("### DIFFICULTY: %d/10 (%s)\n\nGenerate a task description and a list of concrete requirements. The task must be solvable from scratch or from the given files.", difficulty, tier),
		SchemaName: "CurriculumPlan",
		Schema:     curriculumSchema,
	}

	var plan curriculumPlan
	if err := modelgateway.ChatStructuredInto(ctx, a.Gateway, req, curriculumCompiled, &plan); err != nil {
		return types.Task{}, fmt.Errorf("adversary: generate curriculum: %w", err)
	}

	clock := a.Clock
	if clock == nil {
		clock = time.Now
	}

	return types.Task{
		ID:           ulid.Make().String(),
		Description:  plan.Description,
		Requirements: plan.Requirements,
		Status:       types.TaskPending,
		CreatedAt:    clock(),
		Difficulty:   difficulty,
	}, nil
}

// GenerateAdversarialTests asks the model for failing-first test files
// meant to stress a proposed Solution. The model is instructed to emit
// plain source; the cycle orchestrator strips any stray markdown fencing
// before the files reach the sandbox (spec §4.1's sanitization).
func (a *Adversary) GenerateAdversarialTests(ctx context.Context, task types.Task, solution types.Solution) ([]types.FileArtifact, error) {
	var changed strings.Builder
	for _, p := range solution.Patches {
		changed.WriteString("--- ")
		changed.WriteString(p.FilePath)
		changed.WriteString(" ---\n")
		changed.WriteString(p.FullContent)
		changed.WriteString("\n")
	}

	req := modelgateway.StructuredRequest{
		SystemPrompt: "You are an adversarial test writer. Write tests that probe edge cases the proposed solution may have missed. Output plain source code, never markdown code fences.",
		UserPrompt: "### ORIGINAL TASK:\n" + task.Description +
			"\n\n### PROPOSED SOLUTION:\n" + changed.String() +
			"\n\n### INSTRUCTIONS:\nWrite one or more test files that would fail if the solution has any edge-case bugs.",
		SchemaName: "AdversarialTestPlan",
		Schema:     testPlanSchema,
	}

	var plan adversarialTestPlan
	if err := modelgateway.ChatStructuredInto(ctx, a.Gateway, req, testPlanCompiled, &plan); err != nil {
		return nil, fmt.Errorf("adversary: generate adversarial tests: %w", err)
	}
	return plan.TestFiles, nil
}

func difficultyTier(difficulty int) string {
	switch {
	case difficulty <= 3:
		return "basic algorithms and data structures"
	case difficulty <= 7:
		return "system design, APIs, and multi-file refactoring"
	default:
		return "concurrency, security vulnerabilities (SQLi, XSS), and optimization"
	}
}
