// Package config loads uroboros's process configuration: required provider
// API keys (env-only, never written to YAML), per-role model identifiers,
// and the tunables the cycle orchestrator and sandbox arbiter need. All
// config is loaded once at process start; changes require a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is returned when a required field has no value from
// either the YAML file or its environment-variable override. It maps to the
// BudgetConfig error kind: the process fails to start.
type ErrMissingRequired struct {
	Field  string
	EnvVar string
}

func (e *ErrMissingRequired) Error() string {
	return fmt.Sprintf("config: missing required field %q (set %s)", e.Field, e.EnvVar)
}

// ModelsConfig names the model identifier used per role.
type ModelsConfig struct {
	Actor     string `json:"actor,omitempty" yaml:"actor,omitempty"`
	Adversary string `json:"adversary,omitempty" yaml:"adversary,omitempty"`
	Evolver   string `json:"evolver,omitempty" yaml:"evolver,omitempty"`
}

// RunConfigFile is the on-disk (YAML, JSON-mirrored) shape of the process
// configuration. Secrets are never read from here; they are always sourced
// from environment variables at Load time.
type RunConfigFile struct {
	Models          ModelsConfig `json:"models,omitempty" yaml:"models,omitempty"`
	VectorStorePath string       `json:"vector_store_path,omitempty" yaml:"vector_store_path,omitempty"`
	LedgerPath      string       `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`
	DebugRoot       string       `json:"debug_root,omitempty" yaml:"debug_root,omitempty"`
	EnvTag          string       `json:"env_tag,omitempty" yaml:"env_tag,omitempty"`

	MaxAttempts      int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	FeedbackCapBytes int `json:"feedback_cap_bytes,omitempty" yaml:"feedback_cap_bytes,omitempty"`

	// MaxTotalAttempts caps the total number of Solve attempts spent across
	// the whole process (spec §7: BudgetExceeded). 0 means unlimited.
	MaxTotalAttempts int `json:"max_total_attempts,omitempty" yaml:"max_total_attempts,omitempty"`

	SandboxTimeoutSeconds int `json:"sandbox_timeout_seconds,omitempty" yaml:"sandbox_timeout_seconds,omitempty"`

	LoopSleepSeconds      int `json:"loop_sleep_seconds,omitempty" yaml:"loop_sleep_seconds,omitempty"`
	LoopErrorSleepSeconds int `json:"loop_error_sleep_seconds,omitempty" yaml:"loop_error_sleep_seconds,omitempty"`

	RetrievalK int `json:"retrieval_k,omitempty" yaml:"retrieval_k,omitempty"`

	EvolutionMinRuns          int     `json:"evolution_min_runs,omitempty" yaml:"evolution_min_runs,omitempty"`
	EvolutionSuccessRateFloor float64 `json:"evolution_success_rate_floor,omitempty" yaml:"evolution_success_rate_floor,omitempty"`
}

// Config is the fully resolved process configuration: YAML defaults
// overridden by environment variables, with required fields validated.
type Config struct {
	ModelAPIKey   string
	SandboxAPIKey string

	Models ModelsConfig

	VectorStorePath string
	LedgerPath      string
	DebugRoot       string
	Debug           bool
	EnvTag          string

	MaxAttempts      int
	FeedbackCapBytes int
	MaxTotalAttempts int

	SandboxTimeout time.Duration

	LoopSleep      time.Duration
	LoopErrorSleep time.Duration

	RetrievalK int

	EvolutionMinRuns          int
	EvolutionSuccessRateFloor float64
}

func defaults() Config {
	return Config{
		Models: ModelsConfig{
			Actor:     "gpt-4-turbo",
			Adversary: "gpt-4-turbo",
			Evolver:   "gpt-4-turbo",
		},
		VectorStorePath:           "./data/vectorstore",
		LedgerPath:                "./data/prompt_ledger.json",
		MaxAttempts:               3,
		FeedbackCapBytes:          16 * 1024,
		SandboxTimeout:            30 * time.Second,
		LoopSleep:                 5 * time.Second,
		LoopErrorSleep:            10 * time.Second,
		RetrievalK:                3,
		EvolutionMinRuns:          5,
		EvolutionSuccessRateFloor: 0.6,
	}
}

// Load reads an optional YAML file at path (ignored if empty or absent),
// layers environment-variable overrides on top, and validates required
// fields. Required: UROBOROS_MODEL_API_KEY, UROBOROS_SANDBOX_API_KEY.
func Load(path string) (Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		if b, err := os.ReadFile(path); err == nil {
			var file RunConfigFile
			if err := yaml.Unmarshal(b, &file); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
			applyFile(&cfg, file)
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.ModelAPIKey == "" {
		return Config{}, &ErrMissingRequired{Field: "model_api_key", EnvVar: "UROBOROS_MODEL_API_KEY"}
	}
	if cfg.SandboxAPIKey == "" {
		return Config{}, &ErrMissingRequired{Field: "sandbox_api_key", EnvVar: "UROBOROS_SANDBOX_API_KEY"}
	}
	return cfg, nil
}

func applyFile(cfg *Config, f RunConfigFile) {
	if f.Models.Actor != "" {
		cfg.Models.Actor = f.Models.Actor
	}
	if f.Models.Adversary != "" {
		cfg.Models.Adversary = f.Models.Adversary
	}
	if f.Models.Evolver != "" {
		cfg.Models.Evolver = f.Models.Evolver
	}
	if f.VectorStorePath != "" {
		cfg.VectorStorePath = f.VectorStorePath
	}
	if f.LedgerPath != "" {
		cfg.LedgerPath = f.LedgerPath
	}
	if f.DebugRoot != "" {
		cfg.DebugRoot = f.DebugRoot
	}
	if f.EnvTag != "" {
		cfg.EnvTag = f.EnvTag
	}
	if f.MaxAttempts > 0 {
		cfg.MaxAttempts = f.MaxAttempts
	}
	if f.FeedbackCapBytes > 0 {
		cfg.FeedbackCapBytes = f.FeedbackCapBytes
	}
	if f.MaxTotalAttempts > 0 {
		cfg.MaxTotalAttempts = f.MaxTotalAttempts
	}
	if f.SandboxTimeoutSeconds > 0 {
		cfg.SandboxTimeout = time.Duration(f.SandboxTimeoutSeconds) * time.Second
	}
	if f.LoopSleepSeconds > 0 {
		cfg.LoopSleep = time.Duration(f.LoopSleepSeconds) * time.Second
	}
	if f.LoopErrorSleepSeconds > 0 {
		cfg.LoopErrorSleep = time.Duration(f.LoopErrorSleepSeconds) * time.Second
	}
	if f.RetrievalK > 0 {
		cfg.RetrievalK = f.RetrievalK
	}
	if f.EvolutionMinRuns > 0 {
		cfg.EvolutionMinRuns = f.EvolutionMinRuns
	}
	if f.EvolutionSuccessRateFloor > 0 {
		cfg.EvolutionSuccessRateFloor = f.EvolutionSuccessRateFloor
	}
}

func applyEnv(cfg *Config) {
	cfg.ModelAPIKey = firstNonEmpty(os.Getenv("UROBOROS_MODEL_API_KEY"), cfg.ModelAPIKey)
	cfg.SandboxAPIKey = firstNonEmpty(os.Getenv("UROBOROS_SANDBOX_API_KEY"), cfg.SandboxAPIKey)

	cfg.Models.Actor = firstNonEmpty(os.Getenv("UROBOROS_ACTOR_MODEL"), cfg.Models.Actor)
	cfg.Models.Adversary = firstNonEmpty(os.Getenv("UROBOROS_ADVERSARY_MODEL"), cfg.Models.Adversary)
	cfg.Models.Evolver = firstNonEmpty(os.Getenv("UROBOROS_EVOLVER_MODEL"), cfg.Models.Evolver)

	cfg.VectorStorePath = firstNonEmpty(os.Getenv("UROBOROS_VECTOR_STORE_PATH"), cfg.VectorStorePath)
	cfg.LedgerPath = firstNonEmpty(os.Getenv("UROBOROS_LEDGER_PATH"), cfg.LedgerPath)
	cfg.DebugRoot = firstNonEmpty(os.Getenv("UROBOROS_DEBUG_ROOT"), cfg.DebugRoot)
	cfg.EnvTag = firstNonEmpty(os.Getenv("UROBOROS_ENV_TAG"), cfg.EnvTag)

	if v := os.Getenv("UROBOROS_DEBUG"); v != "" {
		cfg.Debug = parseBool(v, cfg.Debug)
	}
	if v := os.Getenv("UROBOROS_MAX_ATTEMPTS"); v != "" {
		cfg.MaxAttempts = parseInt(v, cfg.MaxAttempts)
	}
	if v := os.Getenv("UROBOROS_MAX_TOTAL_ATTEMPTS"); v != "" {
		cfg.MaxTotalAttempts = parseInt(v, cfg.MaxTotalAttempts)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
