// Package actor implements the Actor: the subsystem that turns a Task plus
// retrieved skills and the current ledger prompt into a proposed Solution.
// Grounded on the original actor/agent.py's UroborosActor.solve (retrieve
// skills, build a context block, call the model for a structured Solution,
// then force-inject task_id) and on the teacher's schema-constrained
// structured-call idiom in internal/agent/tool_registry.go.
package actor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/renbytes/uroboros/internal/memory"
	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/types"
)

// DefaultSkillLimit bounds how many retrieved skills are injected into the
// Actor's context (spec §4.3: "top K, default 3").
const DefaultSkillLimit = 3

var solutionSchema = map[string]any{
	"type":     "object",
	"required": []any{"task_id", "patches", "reasoning"},
	"properties": map[string]any{
		"task_id": map[string]any{"type": "string"},
		"patches": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"file_path", "full_content", "explanation"},
				"properties": map[string]any{
					"file_path":    map[string]any{"type": "string"},
					"full_content": map[string]any{"type": "string"},
					"explanation":  map[string]any{"type": "string"},
				},
			},
		},
		"reasoning": map[string]any{"type": "string"},
	},
}

var solutionCompiled *jsonschema.Schema

func init() {
	compiled, err := modelgateway.CompileSchema("Solution", solutionSchema)
	if err != nil {
		panic(err)
	}
	solutionCompiled = compiled
}

// Actor solves Tasks using the current Prompt Ledger head as its system
// prompt and the Skill Memory for in-context examples.
type Actor struct {
	Gateway modelgateway.Gateway
	Model   string
	Memory  *memory.SkillMemory

	// PromptProvider supplies the system prompt (normally the Prompt
	// Ledger's CurrentPrompt). A plain string can be used in tests.
	PromptProvider func() string

	SkillLimit int
	Logger     *log.Logger
}

// Solve retrieves relevant skills, assembles the prompt, and asks the
// Model Gateway for a schema-constrained Solution. Solution.TaskID is
// always overwritten with task.ID regardless of what the model returned
// (spec §4.3: "the orchestrator, not the model, owns task identity").
func (a *Actor) Solve(ctx context.Context, task types.Task) (types.Solution, error) {
	limit := a.SkillLimit
	if limit <= 0 {
		limit = DefaultSkillLimit
	}

	var skills []types.Skill
	if a.Memory != nil {
		var err error
		skills, err = a.Memory.RetrieveRelevantSkills(ctx, task.Description, limit)
		if err != nil {
			a.logf("skill retrieval failed, continuing without skills: %v", err)
		}
	}

	systemPrompt := "You are uroboros, an elite autonomous software engineer."
	if a.PromptProvider != nil {
		if p := a.PromptProvider(); p != "" {
			systemPrompt = p
		}
	}

	userPrompt := buildUserPrompt(task, skills)

	req := modelgateway.StructuredRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   "Solution",
		Schema:       solutionSchema,
	}

	var solution types.Solution
	if err := modelgateway.ChatStructuredInto(ctx, a.Gateway, req, solutionCompiled, &solution); err != nil {
		return types.Solution{}, fmt.Errorf("actor: solve task %s: %w", task.ID, err)
	}
	solution.TaskID = task.ID
	return solution, nil
}

func buildUserPrompt(task types.Task, skills []types.Skill) string {
	var b strings.Builder
	b.WriteString("### TASK DESCRIPTION:\n")
	b.WriteString(task.Description)
	b.WriteString("\n\n### REQUIREMENTS:\n")
	for _, r := range task.Requirements {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}

	b.WriteString("\n### CURRENT FILES:\n")
	if len(task.InitialFiles) == 0 {
		b.WriteString("(none; this is a new project)\n")
	}
	for _, f := range task.InitialFiles {
		b.WriteString("--- ")
		b.WriteString(f.Path)
		b.WriteString(" ---\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}

	if len(skills) > 0 {
		b.WriteString("\n### RELEVANT SKILLS FROM MEMORY:\n")
		for _, s := range skills {
			b.WriteString("--- ")
			b.WriteString(s.Name)
			b.WriteString(" ---\n")
			b.WriteString(s.Docstring)
			b.WriteString("\n")
			b.WriteString(s.Code)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n### INSTRUCTIONS:\nReturn a full solution: complete file contents for every file you change, and your reasoning.")
	return b.String()
}

func (a *Actor) logf(format string, args ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}
