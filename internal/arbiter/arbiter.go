// Package arbiter implements the Sandbox Arbiter: it leases an isolated
// environment, writes a solution's files into it, runs the configured test
// command under a hard wall-clock timeout, and classifies the outcome by
// exit code alone (spec §4.4's classification table, Design Note (c):
// classify strictly by exit code, never by which code branch produced it).
// Grounded on the teacher's internal/attractor/engine sandboxed-execution
// idiom (lease/exec/release) and on the original arbiter/executor.go's
// ResultParser exit-code table.
package arbiter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"

	"github.com/renbytes/uroboros/internal/types"
)

const (
	exitPassed  = 0
	exitSkipped = 5
	exitTimeout = 124
)

// DefaultTimeout is used when Arbiter.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Arbiter executes a candidate solution's files plus a battery of test
// files inside a leased Vendor environment and reports a classified
// TestResult.
type Arbiter struct {
	Vendor Vendor

	// TestCommand runs inside the leased environment's root after files are
	// written. Grounded on the original's pytest invocation
	// ("python3 -m pytest . -p no:cacheprovider --tb=short"); override for
	// other ecosystems.
	TestCommand string

	// DependencyInstallCommand runs once, before TestCommand, only if a
	// requirements manifest is present among the written files. Empty
	// skips dependency installation entirely.
	DependencyInstallCommand string

	// IgnoreGlobs excludes matching relative paths from being written at
	// all (doublestar patterns, e.g. "**/.git/**").
	IgnoreGlobs []string

	Timeout time.Duration
	Logger  *log.Logger
}

// Execute writes files and testFiles into a freshly leased environment,
// runs the test command, and returns a classified TestResult. The leased
// environment is released on every exit path, including panics recovered
// by the caller's own defer stack (Release itself never panics).
func (a *Arbiter) Execute(ctx context.Context, files, testFiles []types.FileArtifact) (types.TestResult, error) {
	testID := "exec-" + newExecID()

	env, err := a.Vendor.Lease(ctx)
	if err != nil {
		return types.TestResult{
			TestID:   testID,
			Status:   types.TestError,
			Stderr:   fmt.Sprintf("failed to lease sandbox: %v", err),
			ExitCode: 1,
		}, nil
	}
	defer func() {
		if err := env.Release(); err != nil {
			a.logf("release failed for environment %s: %v", env.ID(), err)
		}
	}()

	if err := a.writeAll(env, files); err != nil {
		return types.TestResult{TestID: testID, Status: types.TestError, Stderr: err.Error(), ExitCode: 1}, nil
	}
	if err := a.writeAll(env, testFiles); err != nil {
		return types.TestResult{TestID: testID, Status: types.TestError, Stderr: err.Error(), ExitCode: 1}, nil
	}

	if a.DependencyInstallCommand != "" && hasDependencyManifest(files) {
		res, err := env.Exec(ctx, a.DependencyInstallCommand, a.timeout())
		if err != nil {
			return types.TestResult{TestID: testID, Status: types.TestError, Stderr: err.Error(), ExitCode: 1}, nil
		}
		if res.ExitCode != exitPassed {
			return types.TestResult{
				TestID:   testID,
				Status:   types.TestError,
				Stdout:   res.Stdout,
				Stderr:   "dependency installation failed:\n" + res.Stderr,
				ExitCode: res.ExitCode,
			}, nil
		}
	}

	start := time.Now()
	res, err := env.Exec(ctx, a.TestCommand, a.timeout())
	duration := time.Since(start)
	if err != nil {
		return types.TestResult{TestID: testID, Status: types.TestError, Stderr: err.Error(), ExitCode: 1, DurationMS: duration.Milliseconds()}, nil
	}

	return classify(testID, res, duration), nil
}

func classify(testID string, res execResult, duration time.Duration) types.TestResult {
	if res.TimedOut {
		return types.TestResult{
			TestID:     testID,
			Status:     types.TestError,
			Stdout:     res.Stdout,
			Stderr:     "Execution Timed Out",
			ExitCode:   exitTimeout,
			DurationMS: duration.Milliseconds(),
		}
	}

	status := types.TestFailed
	switch res.ExitCode {
	case exitPassed:
		status = types.TestPassed
	case exitSkipped:
		status = types.TestSkipped
	}

	return types.TestResult{
		TestID:     testID,
		Status:     status,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMS: duration.Milliseconds(),
	}
}

func (a *Arbiter) writeAll(env Environment, artifacts []types.FileArtifact) error {
	for _, f := range artifacts {
		if a.ignored(f.Path) {
			continue
		}
		if err := env.WriteFile(f.Path, []byte(f.Content)); err != nil {
			return fmt.Errorf("arbiter: %w", err)
		}
	}
	return nil
}

func (a *Arbiter) ignored(path string) bool {
	for _, pattern := range a.IgnoreGlobs {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

func (a *Arbiter) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultTimeout
}

func (a *Arbiter) logf(format string, args ...any) {
	if a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}

func hasDependencyManifest(files []types.FileArtifact) bool {
	for _, f := range files {
		switch f.Path {
		case "requirements.txt", "pyproject.toml", "go.mod", "package.json":
			return true
		}
	}
	return false
}

func newExecID() string {
	return ulid.Make().String()
}
