// Package types holds the core data model shared by every uroboros
// subsystem: tasks, patches, solutions, test results, skills, and the
// prompt ledger's versioned entries.
package types

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TestStatus classifies a verification outcome. ERROR denotes infrastructure
// issues (timeout, vendor failure) distinct from FAILED, which denotes test
// assertions failing.
type TestStatus string

const (
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
	TestError   TestStatus = "error"
	TestSkipped TestStatus = "skipped"
)

// FileArtifact is a complete file body; the core has no partial-diff
// representation.
type FileArtifact struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Task is a unit of work handed to the Actor. It is immutable once
// constructed; feedback from failed attempts is carried alongside it by the
// orchestrator, never mutated into the stored record.
type Task struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Requirements []string       `json:"requirements"`
	InitialFiles []FileArtifact `json:"initial_files"`
	Status       TaskStatus     `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	Difficulty   int            `json:"difficulty,omitempty"`
}

// WithFeedback returns a copy of the task whose description carries the
// appended feedback envelope. The original Task is never mutated.
func (t Task) WithFeedback(envelope string) Task {
	cp := t
	cp.Description = t.Description + "\n\n" + envelope
	return cp
}

// Patch is interpreted as a full file replacement at FilePath; Explanation
// is advisory and never executed.
type Patch struct {
	FilePath    string `json:"file_path"`
	FullContent string `json:"full_content"`
	Explanation string `json:"explanation"`
}

// Solution is the Actor's proposed resolution to a Task.
type Solution struct {
	TaskID    string  `json:"task_id"`
	Patches   []Patch `json:"patches"`
	Reasoning string  `json:"reasoning"`
}

// TestResult is the Arbiter's strict evaluation of a Solution.
// Invariant: Status == TestPassed iff ExitCode == 0.
type TestResult struct {
	TestID     string     `json:"test_id"`
	Status     TestStatus `json:"status"`
	Stdout     string     `json:"stdout"`
	Stderr     string     `json:"stderr"`
	ExitCode   int        `json:"exit_code"`
	DurationMS int64      `json:"duration_ms"`
}

// Skill is a verified, reusable artifact distilled from a passing Solution.
// Name is unique across the store; insertion is upsert-by-name.
type Skill struct {
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Docstring   string    `json:"docstring"`
	Tags        []string  `json:"tags"`
	Embedding   []float64 `json:"embedding,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// PromptVersion is one append-only entry in the Prompt Ledger.
// Invariant: SuccessRate == Successes/Runs when Runs > 0, else 0.
type PromptVersion struct {
	VersionID       int       `json:"version_id"`
	Content         string    `json:"content"`
	ParentVersion   *int      `json:"parent_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Runs            int       `json:"runs"`
	Successes       int       `json:"successes"`
	SuccessRate     float64   `json:"success_rate"`
	ChangeSummary   string    `json:"change_summary"`
	EvolutionLogRef string    `json:"evolution_log_ref,omitempty"`
}

// Recompute keeps SuccessRate consistent with Runs/Successes.
func (v *PromptVersion) Recompute() {
	if v.Runs > 0 {
		v.SuccessRate = float64(v.Successes) / float64(v.Runs)
	} else {
		v.SuccessRate = 0
	}
}
