// Package ledger implements the Prompt Ledger: an append-only, versioned
// record of the Actor's generator instructions with hysteresis rules for
// when to mutate them (spec §4.6). Persistence follows the teacher's
// atomic-rename pattern (internal/attractor/engine/rust_sandbox_preflight.go's
// os.CreateTemp + os.Rename) over a single JSON array of
// types.PromptVersion, which carries json tags only (spec: "JSON is
// canonical").
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/types"
)

const defaultGenesisPrompt = `You are uroboros, an elite autonomous software engineer.
Your goal is to solve the user's task by modifying the codebase.
Analyze requirements, check your memory for skills, and write robust, well-tested code.`

// maxFailureWindow bounds how many recent failure strings are sent to the
// evolver (spec §4.6: "default last 5").
const maxFailureWindow = 5

type promptEvolution struct {
	Analysis        string `json:"analysis"`
	OptimizedPrompt string `json:"optimized_prompt"`
	ChangeSummary   string `json:"change_summary"`
}

var promptEvolutionSchema = map[string]any{
	"type":     "object",
	"required": []any{"analysis", "optimized_prompt", "change_summary"},
	"properties": map[string]any{
		"analysis":         map[string]any{"type": "string"},
		"optimized_prompt": map[string]any{"type": "string"},
		"change_summary":   map[string]any{"type": "string"},
	},
}

var promptEvolutionCompiled *jsonschema.Schema

func init() {
	compiled, err := modelgateway.CompileSchema("PromptEvolution", promptEvolutionSchema)
	if err != nil {
		panic(err)
	}
	promptEvolutionCompiled = compiled
}

// Ledger is the append-only, process-private prompt version history.
// Concurrent processes writing to the same path is undefined (spec §5);
// callers must prevent that by operational convention.
type Ledger struct {
	mu   sync.Mutex
	path string

	versions []types.PromptVersion

	gateway      modelgateway.Gateway
	evolverModel string

	minRuns   int
	rateFloor float64

	clock     func() time.Time
	debugRoot string

	logger *log.Logger
}

// Options configures a Ledger.
type Options struct {
	Path         string
	Gateway      modelgateway.Gateway
	EvolverModel string
	MinRuns      int     // default 5
	RateFloor    float64 // default 0.6
	Clock        func() time.Time
	DebugRoot    string
	Logger       *log.Logger
}

// Load reads the ledger blob at opts.Path. An empty or corrupt blob (or a
// missing file) reinitializes with a genesis version (spec §4.6).
func Load(opts Options) (*Ledger, error) {
	if opts.MinRuns <= 0 {
		opts.MinRuns = 5
	}
	if opts.RateFloor <= 0 {
		opts.RateFloor = 0.6
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[ledger] ", log.LstdFlags)
	}

	l := &Ledger{
		path:         opts.Path,
		gateway:      opts.Gateway,
		evolverModel: opts.EvolverModel,
		minRuns:      opts.MinRuns,
		rateFloor:    opts.RateFloor,
		clock:        opts.Clock,
		debugRoot:    opts.DebugRoot,
		logger:       opts.Logger,
	}

	versions, err := l.tryLoadFromDisk()
	if err != nil || len(versions) == 0 {
		if err != nil {
			l.logger.Printf("load failed, reinitializing with genesis: %v", err)
		}
		l.versions = []types.PromptVersion{l.genesis()}
		if saveErr := l.persistLocked(); saveErr != nil {
			return nil, fmt.Errorf("ledger: persist genesis: %w", saveErr)
		}
		return l, nil
	}
	l.versions = versions
	return l, nil
}

func (l *Ledger) genesis() types.PromptVersion {
	v := types.PromptVersion{
		VersionID:     0,
		Content:       defaultGenesisPrompt,
		CreatedAt:     l.clock(),
		ChangeSummary: "genesis",
	}
	v.Recompute()
	return v
}

func (l *Ledger) tryLoadFromDisk() ([]types.PromptVersion, error) {
	if l.path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var versions []types.PromptVersion
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// CurrentPrompt returns the head version's content.
func (l *Ledger) CurrentPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head().Content
}

func (l *Ledger) head() types.PromptVersion {
	return l.versions[len(l.versions)-1]
}

// RecordRun increments the head version's run count (and success count, if
// success) and recomputes its success rate.
func (l *Ledger) RecordRun(success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := len(l.versions) - 1
	l.versions[idx].Runs++
	if success {
		l.versions[idx].Successes++
	}
	l.versions[idx].Recompute()
	return l.persistLocked()
}

// Step evaluates the evolution trigger and, if warranted, rewrites the head
// prompt via the Model Gateway. Evolution proceeds iff head.Runs >= minRuns
// and head.SuccessRate < rateFloor (spec §4.6's hysteresis). Returns whether
// a new version was appended.
func (l *Ledger) Step(ctx context.Context, recentFailures []string) (bool, error) {
	l.mu.Lock()
	head := l.head()
	l.mu.Unlock()

	if head.Runs < l.minRuns {
		return false, nil
	}
	if head.SuccessRate >= l.rateFloor {
		return false, nil
	}
	if l.gateway == nil {
		l.logger.Printf("evolution triggered (runs=%d rate=%.2f) but no gateway configured, skipping", head.Runs, head.SuccessRate)
		return false, nil
	}

	window := recentFailures
	if len(window) > maxFailureWindow {
		window = window[len(window)-maxFailureWindow:]
	}

	req := modelgateway.StructuredRequest{
		SystemPrompt: "You are a prompt engineer optimizing the system prompt of an AI code agent. Analyze the failure logs, diagnose why the current prompt failed to prevent them, and rewrite the prompt to be concise but strict.",
		UserPrompt:   buildEvolutionPrompt(head.Content, window),
		SchemaName:   "PromptEvolution",
		Schema:       promptEvolutionSchema,
	}

	var evolution promptEvolution
	if err := modelgateway.ChatStructuredInto(ctx, l.gateway, req, promptEvolutionCompiled, &evolution); err != nil {
		l.logger.Printf("evolution gateway call failed, leaving ledger unchanged: %v", err)
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	parent := head.VersionID
	next := types.PromptVersion{
		VersionID:     parent + 1,
		Content:       evolution.OptimizedPrompt,
		ParentVersion: &parent,
		CreatedAt:     l.clock(),
		ChangeSummary: evolution.ChangeSummary,
	}
	next.Recompute()
	l.versions = append(l.versions, next)
	if l.debugRoot != "" {
		next.EvolutionLogRef = l.writeEvolutionLog(next.VersionID, evolution)
		l.versions[len(l.versions)-1] = next
	}
	if err := l.persistLocked(); err != nil {
		return true, err
	}
	l.logger.Printf("prompt evolved to v%d: %s", next.VersionID, next.ChangeSummary)
	return true, nil
}

func buildEvolutionPrompt(currentPrompt string, failures []string) string {
	out := "### CURRENT SYSTEM PROMPT:\n" + currentPrompt + "\n\n### RECENT FAILURE LOGS:\n"
	for _, f := range failures {
		out += f + "\n"
	}
	out += "\n### INSTRUCTIONS:\nRewrite the system prompt to fix these recurring errors."
	return out
}

func (l *Ledger) writeEvolutionLog(versionID int, evolution promptEvolution) string {
	rel := filepath.Join("prompt_evolutions", fmt.Sprintf("v%d.json", versionID))
	full := filepath.Join(l.debugRoot, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		l.logger.Printf("failed to prepare evolution log dir: %v", err)
		return ""
	}
	raw, err := json.MarshalIndent(evolution, "", "  ")
	if err != nil {
		return ""
	}
	if err := os.WriteFile(full, raw, 0o644); err != nil {
		l.logger.Printf("failed to write evolution log: %v", err)
		return ""
	}
	return rel
}

// persistLocked writes the ledger atomically: temp file in the same
// directory, then rename (grounded on rust_sandbox_preflight.go's
// CreateTemp+Rename probe). Callers must hold l.mu.
func (l *Ledger) persistLocked() error {
	if l.path == "" {
		return nil
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(l.versions, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Versions returns a defensive copy of the full version history, newest last.
func (l *Ledger) Versions() []types.PromptVersion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.PromptVersion(nil), l.versions...)
}
