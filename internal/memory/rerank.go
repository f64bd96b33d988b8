package memory

import (
	"context"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/renbytes/uroboros/internal/modelgateway"
)

// ReRanker is the model-driven second-stage filter over vector-store
// candidates (spec §4.5a).
type ReRanker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error)
}

// reRankResult mirrors the schema requested from the Model Gateway:
// {selected_ids[], reasoning}.
type reRankResult struct {
	SelectedIDs []string `json:"selected_ids"`
	Reasoning   string   `json:"reasoning"`
}

var reRankSchema = map[string]any{
	"type":     "object",
	"required": []any{"selected_ids", "reasoning"},
	"properties": map[string]any{
		"selected_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"reasoning":    map[string]any{"type": "string"},
	},
}

var reRankCompiled *jsonschema.Schema

func init() {
	compiled, err := modelgateway.CompileSchema("ReRankResult", reRankSchema)
	if err != nil {
		panic(err)
	}
	reRankCompiled = compiled
}

// ModelReRanker is the reference ReRanker: a schema-constrained Model
// Gateway call asked to pick the most relevant candidate ids (spec §4.5a).
type ModelReRanker struct {
	Gateway modelgateway.Gateway
	Model   string
	Logger  *log.Logger
}

// Rerank implements the spec's contract exactly: if |candidates| <= k,
// return unchanged. Otherwise ask the model, intersect its selection with
// the known candidate ids (preserving the model's order, dropping unknown
// ids), and fall back to top-k similarity order if the intersection is
// empty or the model call fails.
func (r *ModelReRanker) Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error) {
	if len(candidates) <= k {
		return candidates, nil
	}

	byID := make(map[string]Candidate, len(candidates))
	var lines strings.Builder
	for i, c := range candidates {
		byID[c.ID] = c
		if i > 0 {
			lines.WriteString("\n")
		}
		lines.WriteString("ID: ")
		lines.WriteString(c.ID)
		lines.WriteString("\nDocstring: ")
		lines.WriteString(c.Metadata["docstring"])
	}

	req := modelgateway.StructuredRequest{
		SystemPrompt: "You are a senior engineer acting as a retrieval system. Select the most relevant code skills from a list to help solve a specific task. Discard irrelevant skills.",
		UserPrompt:   "### TASK:\n" + query + "\n\n### CANDIDATE SKILLS:\n" + lines.String() + "\n\n### INSTRUCTIONS:\nReturn the ids of the top relevant skills.",
		SchemaName:   "ReRankResult",
		Schema:       reRankSchema,
	}

	var result reRankResult
	if err := modelgateway.ChatStructuredInto(ctx, r.Gateway, req, reRankCompiled, &result); err != nil {
		r.logf("re-rank failed, falling back to vector order: %v", err)
		return topK(candidates, k), nil
	}

	selected := make([]Candidate, 0, k)
	for _, id := range result.SelectedIDs {
		if c, ok := byID[id]; ok {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		r.logf("re-rank returned no known ids, falling back to vector order")
		return topK(candidates, k), nil
	}
	return topK(selected, k), nil
}

func (r *ModelReRanker) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

func topK(candidates []Candidate, k int) []Candidate {
	if len(candidates) <= k {
		return candidates
	}
	return candidates[:k]
}
