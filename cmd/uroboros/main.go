// Command uroboros runs the autonomous Cycle Orchestrator: it generates a
// curriculum task (or solves a single task supplied on the command line),
// drives it through Solve -> Attack -> Verify, and either consolidates a
// skill or records a failed run against the Prompt Ledger.
//
// Grounded on cmd/kilroy/main.go's hand-rolled dispatch (switch
// os.Args[1], manual flag loop, no cobra/viper) and its
// signalCancelContext helper for graceful SIGINT/SIGTERM shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renbytes/uroboros/internal/actor"
	"github.com/renbytes/uroboros/internal/adversary"
	"github.com/renbytes/uroboros/internal/arbiter"
	"github.com/renbytes/uroboros/internal/config"
	"github.com/renbytes/uroboros/internal/cycle"
	"github.com/renbytes/uroboros/internal/embedding"
	"github.com/renbytes/uroboros/internal/ledger"
	"github.com/renbytes/uroboros/internal/memory"
	"github.com/renbytes/uroboros/internal/metrics"
	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/modelgateway/fakegateway"
	"github.com/renbytes/uroboros/internal/types"
)

// defaultTask is the built-in single-cycle task run when the operator
// supplies neither --task nor --loop (spec §6), grounded on
// original_source/main.py's run_cycle, which falls back to an
// Adversary-generated curriculum task only when no task_description is
// given; here a fixed task stands in for that default path.
func defaultTask(difficulty int) types.Task {
	return types.Task{
		Description: "Write a function that returns the nth Fibonacci number, handling n <= 0 by returning 0.",
		Requirements: []string{
			"Must handle n == 0 and negative n by returning 0",
			"Must be correct for n up to at least 30",
		},
		Status:     types.TaskPending,
		Difficulty: difficulty,
	}
}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Println("uroboros 0.1.0")
		os.Exit(0)
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  uroboros --version")
	fmt.Fprintln(os.Stderr, "  uroboros run [--config <run.yaml>] [--task <description>] [--difficulty <1-10>] [--loop]")
}

func run(args []string) {
	var configPath string
	var taskDescription string
	var difficulty int
	var loop bool

	difficulty = 5
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--task":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--task requires a value")
				os.Exit(1)
			}
			taskDescription = args[i]
		case "--difficulty":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--difficulty requires a value")
				os.Exit(1)
			}
			if _, err := fmt.Sscanf(args[i], "%d", &difficulty); err != nil {
				fmt.Fprintf(os.Stderr, "invalid --difficulty value %q\n", args[i])
				os.Exit(1)
			}
		case "--loop":
			loop = true
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	if taskDescription != "" {
		task := types.Task{
			Description: taskDescription,
			Status:      types.TaskPending,
			Difficulty:  difficulty,
		}
		res, err := eng.RunTask(ctx, task)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		reportResult(res)
		if res.Outcome != cycle.OutcomeConsolidated {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if !loop {
		// spec §6: neither --task nor --loop runs a single cycle against a
		// built-in default task, not an Adversary-generated one.
		res, err := eng.RunTask(ctx, defaultTask(difficulty))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		reportResult(res)
		if res.Outcome != cycle.OutcomeConsolidated {
			os.Exit(1)
		}
		os.Exit(0)
	}

	var allResults []types.TestResult
	var allAttempts []int

	for {
		select {
		case <-ctx.Done():
			fmt.Println("shutting down:", context.Cause(ctx))
			reportRunMetrics(allResults, allAttempts)
			os.Exit(0)
		default:
		}

		res, err := eng.RunCycle(ctx, difficulty)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cycle error:", err)
			if errors.Is(err, cycle.ErrBudgetExceeded) {
				fmt.Println("budget exceeded, exiting loop")
				reportRunMetrics(allResults, allAttempts)
				os.Exit(0)
			}
			if !sleepOrDone(ctx, cfg.LoopErrorSleep) {
				reportRunMetrics(allResults, allAttempts)
				os.Exit(0)
			}
			continue
		}
		reportResult(res)
		allResults = append(allResults, res.TestResult)
		allAttempts = append(allAttempts, res.Attempts)
		if !sleepOrDone(ctx, cfg.LoopSleep) {
			reportRunMetrics(allResults, allAttempts)
			os.Exit(0)
		}
	}
}

// reportRunMetrics logs the aggregate run metrics once loop mode exits
// (supplemented from original_source/arbiter/metrics.py, outside the four
// core subsystems but useful to surface when a process-lifetime's worth of
// cycles has run).
func reportRunMetrics(results []types.TestResult, attempts []int) {
	if len(results) == 0 {
		return
	}
	m := metrics.ComputeRunMetrics(results)
	fmt.Printf("run summary: total=%d passed=%d failed=%d errored=%d success_rate=%.2f mean_attempts=%.2f\n",
		m.Total, m.Passed, m.Failed, m.Errored, m.SuccessRate, metrics.MeanAttempts(attempts))
}

// sleepOrDone waits d before the next loop iteration, returning false if
// ctx was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func reportResult(res cycle.Result) {
	fmt.Printf("task=%s outcome=%s attempts=%d pass@k=%.1f\n", res.Task.ID, res.Outcome, res.Attempts, res.PassAtK)
	if res.Outcome == cycle.OutcomeConsolidated {
		fmt.Printf("skill=%s\n", res.SkillName)
	}
	if res.Evolved {
		fmt.Println("prompt ledger evolved")
	}
}

func buildEngine(cfg config.Config) (*cycle.Engine, error) {
	logger := log.New(os.Stderr, "[uroboros] ", log.LstdFlags)

	gw := modelgateway.WithRetry(fakegateway.New(), modelgateway.BackoffConfig{}, logger)

	embedder := embedding.NewLocal(256)
	var store memory.VectorStore
	if cfg.VectorStorePath != "" {
		fileStore, err := memory.OpenFileStore(cfg.VectorStorePath)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		store = fileStore
	} else {
		store = memory.NewInMemoryVectorStore()
	}
	reranker := &memory.ModelReRanker{Gateway: gw, Model: cfg.Models.Actor, Logger: logger}
	mem := memory.New(embedder, store, reranker, logger, cfg.EnvTag)

	lg, err := ledger.Load(ledger.Options{
		Path:         cfg.LedgerPath,
		Gateway:      gw,
		EvolverModel: cfg.Models.Evolver,
		MinRuns:      cfg.EvolutionMinRuns,
		RateFloor:    cfg.EvolutionSuccessRateFloor,
		DebugRoot:    cfg.DebugRoot,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("load prompt ledger: %w", err)
	}

	sandboxBaseDir := "./data/sandboxes"
	if cfg.DebugRoot != "" {
		sandboxBaseDir = cfg.DebugRoot + "/sandboxes"
	}
	vendor, err := arbiter.NewLocalVendor(sandboxBaseDir)
	if err != nil {
		return nil, fmt.Errorf("create sandbox vendor: %w", err)
	}
	arb := &arbiter.Arbiter{
		Vendor:                   vendor,
		TestCommand:              "python3 -m pytest . -p no:cacheprovider --tb=short",
		DependencyInstallCommand: "pip install -q -r requirements.txt",
		IgnoreGlobs:              []string{"**/.git/**"},
		Timeout:                  cfg.SandboxTimeout,
		Logger:                   logger,
	}

	act := &actor.Actor{
		Gateway:        gw,
		Model:          cfg.Models.Actor,
		Memory:         mem,
		PromptProvider: lg.CurrentPrompt,
		SkillLimit:     cfg.RetrievalK,
		Logger:         logger,
	}
	adv := &adversary.Adversary{Gateway: gw, Model: cfg.Models.Adversary, Logger: logger}

	return &cycle.Engine{
		Actor:            act,
		Adversary:        adv,
		Arbiter:          arb,
		Memory:           mem,
		Ledger:           lg,
		Budget:           cycle.NewAttemptBudget(cfg.MaxTotalAttempts),
		MaxAttempts:      cfg.MaxAttempts,
		FeedbackCapBytes: cfg.FeedbackCapBytes,
		DebugRoot:        cfg.DebugRoot,
		Debug:            cfg.Debug,
		Logger:           logger,
	}, nil
}
