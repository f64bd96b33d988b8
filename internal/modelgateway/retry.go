package modelgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// retrying wraps a Gateway with the Gateway's own exponential backoff over
// Retryable errors (spec §7: retries live only in the Gateway's backoff,
// the orchestrator's attempt loop, and the loop mode's post-error sleep —
// nothing else retries). Once attempts are exhausted it surfaces the last
// error unchanged.
type retrying struct {
	inner  Gateway
	cfg    BackoffConfig
	logger *log.Logger
	sleep  func(context.Context, time.Duration) error
}

// WithRetry decorates gw with the Gateway's own backoff. logger may be nil.
func WithRetry(gw Gateway, cfg BackoffConfig, logger *log.Logger) Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg = defaultBackoffConfig()
	}
	if logger == nil {
		logger = log.New(devNull{}, "", 0)
	}
	return &retrying{inner: gw, cfg: cfg, logger: logger, sleep: ctxSleep}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *retrying) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := r.inner.Chat(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !r.retryableAndMoreAttempts(ctx, err, attempt, systemPrompt+userPrompt) {
			return "", err
		}
	}
	return "", fmt.Errorf("modelgateway: chat retries exhausted: %w", lastErr)
}

func (r *retrying) ChatStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := r.inner.ChatStructured(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !r.retryableAndMoreAttempts(ctx, err, attempt, req.SchemaName+req.UserPrompt) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("modelgateway: chat_structured retries exhausted: %w", lastErr)
}

func (r *retrying) retryableAndMoreAttempts(ctx context.Context, err error, attempt int, seed string) bool {
	if !IsRetryable(err) || attempt >= r.cfg.MaxAttempts {
		return false
	}
	delay := delayForAttempt(attempt, r.cfg, fmt.Sprintf("%s:%d", seed, attempt))
	if ra := retryAfterOf(err); ra != nil && *ra > delay {
		delay = *ra
	}
	r.logger.Printf("transient gateway error on attempt %d, retrying in %s: %v", attempt, delay, err)
	if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
		return false
	}
	return true
}

type devNull struct{}

func (devNull) Write(p []byte) (int, error) { return len(p), nil }
