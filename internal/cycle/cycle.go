// Package cycle implements the Cycle Orchestrator: the state machine that
// drives one GenerateTask -> Solve -> Attack -> Verify -> (Consolidate |
// Retry | GiveUp) loop (spec §4.1). Grounded on the original main.py's
// OuroborosEngine.run_cycle for the state sequencing and feedback envelope
// format, and on the teacher's internal/server graceful-shutdown / logging
// idioms for how the loop is wrapped for a long-running process.
package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/renbytes/uroboros/internal/actor"
	"github.com/renbytes/uroboros/internal/adversary"
	"github.com/renbytes/uroboros/internal/arbiter"
	"github.com/renbytes/uroboros/internal/ledger"
	"github.com/renbytes/uroboros/internal/memory"
	"github.com/renbytes/uroboros/internal/metrics"
	"github.com/renbytes/uroboros/internal/types"
)

// DefaultMaxAttempts bounds how many Solve/Attack/Verify rounds a single
// task gets before the cycle gives up (spec §4.1: "default 3").
const DefaultMaxAttempts = 3

// maxRecentFailureWindow bounds how many stderr snippets are retained
// across a run to hand the Prompt Ledger's evolver (spec §4.6: last 5).
const maxRecentFailureWindow = 5

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeConsolidated Outcome = "consolidated"
	OutcomeGaveUp       Outcome = "gave_up"
)

// Result is the full record of one completed cycle.
type Result struct {
	Task       types.Task
	Solution   types.Solution
	TestResult types.TestResult
	Attempts   int
	Outcome    Outcome
	SkillName  string // set only when Outcome == OutcomeConsolidated
	Evolved    bool

	// PassAtK is metrics.EvaluatePassAtK over this task's per-attempt
	// pass/fail outcomes: 1.0 if any attempt passed, else 0.0 (spec §9
	// design note material, supplemented from
	// original_source/arbiter/metrics.py's evaluate_pass_at_k).
	PassAtK float64
}

// Engine wires the four subsystems together and runs cycles.
type Engine struct {
	Actor     *actor.Actor
	Adversary *adversary.Adversary
	Arbiter   *arbiter.Arbiter
	Memory    *memory.SkillMemory
	Ledger    *ledger.Ledger

	// Budget vetoes further Solve attempts once an external cost/token cap
	// is reached (spec §7: BudgetExceeded). Nil disables budget checking.
	Budget BudgetGuard

	MaxAttempts      int
	FeedbackCapBytes int
	DebugRoot        string
	// Debug gates non-final debug artifacts (spec §6: "written only when
	// the debug flag is set or when the step name is prefixed final_").
	Debug bool

	// Clock is consulted for debug-artifact timestamps; defaults to
	// time.Now. Injectable so tests get deterministic filenames.
	Clock func() time.Time

	Logger *log.Logger

	// recentFailures is the rolling window of stderr snippets passed to the
	// Prompt Ledger's Step on every terminal outcome, consolidate and
	// give-up alike (spec §4.6).
	recentFailures []string
}

// RunCycle generates one Task at the given difficulty and drives it
// through the full state machine.
func (e *Engine) RunCycle(ctx context.Context, difficulty int) (Result, error) {
	task, err := e.Adversary.GenerateCurriculum(ctx, difficulty)
	if err != nil {
		return Result{}, fmt.Errorf("cycle: generate task: %w", err)
	}
	e.logf("generated task %s (difficulty %d)", task.ID, difficulty)
	return e.RunTask(ctx, task)
}

// RunTask drives an existing Task through Solve -> Attack -> Verify,
// retrying with accumulated feedback up to MaxAttempts times.
func (e *Engine) RunTask(ctx context.Context, task types.Task) (Result, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	// A Task built without an id (e.g. from the CLI) gets a ULID here, so
	// its skill name and debug-artifact directory are unique.
	if task.ID == "" {
		task.ID = ulid.Make().String()
	}

	e.writeDebugArtifact(task.ID, "task_definition", "txt",
		fmt.Sprintf("Description: %s\nRequirements: %v", task.Description, task.Requirements))

	current := task
	var lastSolution types.Solution
	var lastResult types.TestResult
	var attemptOutcomes []bool

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if e.Budget != nil {
			if err := e.Budget.Check(); err != nil {
				return Result{}, fmt.Errorf("cycle: %w", err)
			}
		}

		solution, err := e.Actor.Solve(ctx, current)
		if err != nil || len(solution.Patches) == 0 {
			// spec §4.1: an Actor failure (model error or empty patches) is
			// counted as a failed attempt with synthesized feedback, not a
			// fatal cycle error.
			if err != nil {
				e.logf("attempt %d/%d for task %s: actor error: %v", attempt, maxAttempts, task.ID, err)
			} else {
				e.logf("attempt %d/%d for task %s: actor produced no patches", attempt, maxAttempts, task.ID)
			}
			lastSolution = solution
			lastResult = types.TestResult{Status: types.TestError, Stderr: "actor produced no patches", ExitCode: 1}
			e.recordFailure(lastResult)
			attemptOutcomes = append(attemptOutcomes, false)
			if attempt < maxAttempts {
				current = current.WithFeedback(buildFeedbackEnvelope(lastResult.Stdout, lastResult.Stderr, e.FeedbackCapBytes))
			}
			continue
		}
		sanitizePatches(solution.Patches)
		lastSolution = solution

		testFiles, err := e.Adversary.GenerateAdversarialTests(ctx, task, solution)
		if err != nil {
			// spec §7: TransportRetryable/SchemaParse from the Adversary fail
			// the attempt, same as an Actor failure, rather than aborting the
			// cycle outright.
			e.logf("attempt %d/%d for task %s: adversary error: %v", attempt, maxAttempts, task.ID, err)
			lastResult = types.TestResult{Status: types.TestError, Stderr: "adversary produced no tests: " + err.Error(), ExitCode: 1}
			e.recordFailure(lastResult)
			attemptOutcomes = append(attemptOutcomes, false)
			if attempt < maxAttempts {
				current = current.WithFeedback(buildFeedbackEnvelope(lastResult.Stdout, lastResult.Stderr, e.FeedbackCapBytes))
			}
			continue
		}
		sanitizeTestFiles(testFiles)

		files := mergeFiles(task.InitialFiles, solution.Patches)
		result, err := e.Arbiter.Execute(ctx, files, testFiles)
		if err != nil {
			return Result{}, fmt.Errorf("cycle: attempt %d: execute: %w", attempt, err)
		}
		lastResult = result

		if result.Status == types.TestPassed {
			attemptOutcomes = append(attemptOutcomes, true)
			return e.consolidate(ctx, task, solution, result, attempt, attemptOutcomes)
		}

		attemptOutcomes = append(attemptOutcomes, false)
		e.logf("attempt %d/%d for task %s: %s", attempt, maxAttempts, task.ID, result.Status)
		e.recordFailure(result)
		e.writeDebugArtifact(task.ID, fmt.Sprintf("attempt_%d_failure_log", attempt), "log",
			fmt.Sprintf("STDOUT:\n%s\n\nSTDERR:\n%s", result.Stdout, result.Stderr))

		if attempt < maxAttempts {
			current = current.WithFeedback(buildFeedbackEnvelope(result.Stdout, result.Stderr, e.FeedbackCapBytes))
		}
	}

	return e.giveUp(ctx, task, lastSolution, lastResult, maxAttempts, attemptOutcomes)
}

func (e *Engine) consolidate(ctx context.Context, task types.Task, solution types.Solution, result types.TestResult, attempts int, outcomes []bool) (Result, error) {
	skillName := "skill_" + shortID(task.ID)
	// Only the first patch becomes the skill body, even when a Solution
	// touched multiple files. Matches the original engine's behavior
	// (source bug flagged by spec, preserved rather than silently fixed).
	var code string
	if len(solution.Patches) > 0 {
		code = solution.Patches[0].FullContent
	}
	skill := types.Skill{
		Name:      skillName,
		Code:      code,
		Docstring: task.Description,
		Tags:      []string{"verified", "auto-generated"},
	}
	if _, err := e.Memory.StoreSkill(ctx, skill); err != nil {
		e.logf("failed to store skill for task %s: %v", task.ID, err)
	}

	// final_* artifacts are always saved, even with Debug unset (spec §6).
	e.writeDebugArtifact(task.ID, "final_solution_code", "py", code)
	if skillJSON, err := json.MarshalIndent(skill, "", "  "); err != nil {
		e.logf("failed to marshal skill for debug artifact: %v", err)
	} else {
		e.writeDebugArtifact(task.ID, "final_solution_skill", "json", string(skillJSON))
	}

	if e.Ledger != nil {
		if err := e.Ledger.RecordRun(true); err != nil {
			e.logf("failed to record successful run: %v", err)
		}
	}

	evolved := false
	if e.Ledger != nil {
		var err error
		evolved, err = e.Ledger.Step(ctx, e.recentFailures)
		if err != nil {
			e.logf("prompt evolution step failed: %v", err)
		}
	}

	return Result{
		Task:       task,
		Solution:   solution,
		TestResult: result,
		Attempts:   attempts,
		Outcome:    OutcomeConsolidated,
		SkillName:  skillName,
		Evolved:    evolved,
		PassAtK:    metrics.EvaluatePassAtK(outcomes),
	}, nil
}

func (e *Engine) giveUp(ctx context.Context, task types.Task, solution types.Solution, result types.TestResult, attempts int, outcomes []bool) (Result, error) {
	if e.Ledger != nil {
		if err := e.Ledger.RecordRun(false); err != nil {
			e.logf("failed to record failed run: %v", err)
		}
	}

	evolved := false
	if e.Ledger != nil {
		var err error
		evolved, err = e.Ledger.Step(ctx, e.recentFailures)
		if err != nil {
			e.logf("prompt evolution step failed: %v", err)
		}
	}

	// final_status is always saved, even with Debug unset (spec §6).
	e.writeDebugArtifact(task.ID, "final_status", "txt", "FAILED")

	return Result{
		Task:       task,
		Solution:   solution,
		TestResult: result,
		Attempts:   attempts,
		Outcome:    OutcomeGaveUp,
		Evolved:    evolved,
		PassAtK:    metrics.EvaluatePassAtK(outcomes),
	}, nil
}

func (e *Engine) recordFailure(result types.TestResult) {
	snippet := result.Stderr
	if snippet == "" {
		snippet = result.Stdout
	}
	e.recentFailures = append(e.recentFailures, snippet)
	if len(e.recentFailures) > maxRecentFailureWindow {
		e.recentFailures = e.recentFailures[len(e.recentFailures)-maxRecentFailureWindow:]
	}
}

// writeDebugArtifact persists one named debug artifact under DebugRoot,
// grounded on original_source/core/utils.py's save_debug_artifact: a
// step whose name is prefixed "final_" is always written; every other
// step is written only when Debug is set (spec §6).
func (e *Engine) writeDebugArtifact(taskID, step, ext, body string) {
	if e.DebugRoot == "" {
		return
	}
	isFinal := strings.HasPrefix(step, "final_")
	if !e.Debug && !isFinal {
		return
	}
	dir := e.DebugRoot + "/" + taskID
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logf("failed to prepare debug dir: %v", err)
		return
	}
	path := fmt.Sprintf("%s/%s_%s.%s", dir, e.clock().Format("20060102T150405.000000000"), step, ext)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		e.logf("failed to write debug artifact: %v", err)
	}
}

func (e *Engine) clock() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

func sanitizePatches(patches []types.Patch) {
	for i := range patches {
		patches[i].FullContent = stripLongestCodeFence(patches[i].FullContent)
	}
}

// sanitizeTestFiles applies the same longest-fence stripping to the
// Adversary's test files before they reach the sandbox (spec §4.1 names
// both patch content and test file content).
func sanitizeTestFiles(files []types.FileArtifact) {
	for i := range files {
		files[i].Content = stripLongestCodeFence(files[i].Content)
	}
}

// mergeFiles overlays patches onto the task's initial files by path,
// appending any patch that names a new path.
func mergeFiles(initial []types.FileArtifact, patches []types.Patch) []types.FileArtifact {
	byPath := make(map[string]int, len(initial))
	out := make([]types.FileArtifact, len(initial))
	copy(out, initial)
	for i, f := range out {
		byPath[f.Path] = i
	}
	for _, p := range patches {
		if idx, ok := byPath[p.FilePath]; ok {
			out[idx].Content = p.FullContent
			continue
		}
		out = append(out, types.FileArtifact{Path: p.FilePath, Content: p.FullContent})
		byPath[p.FilePath] = len(out) - 1
	}
	return out
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
