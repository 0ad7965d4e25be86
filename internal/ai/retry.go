package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/duetforge/agent-tools/internal/logging"
)

// RetryRunner wraps an AgentRunner with capped exponential backoff.
// Context cancellation aborts both the in-flight attempt and the backoff
// sleep.
type RetryRunner struct {
	Inner      AgentRunner
	MaxRetries int
	BaseDelay  time.Duration // delay before the first retry; doubles per attempt
	MaxDelay   time.Duration // zero means 5 minutes
}

// Name implements AgentRunner.
func (r *RetryRunner) Name() string {
	return r.Inner.Name()
}

// Generate implements AgentRunner, retrying transient failures.
func (r *RetryRunner) Generate(ctx context.Context, prompt string, outputPath string) error {
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	delay := r.BaseDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		err = r.Inner.Generate(ctx, prompt, outputPath)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s run cancelled: %w", r.Inner.Name(), ctx.Err())
		}
		if attempt == r.MaxRetries {
			break
		}

		logging.Warn("%s attempt %d/%d failed (%v), retrying in %s",
			r.Inner.Name(), attempt+1, r.MaxRetries+1, err, logging.FormatDuration(delay))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s run cancelled: %w", r.Inner.Name(), ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", r.Inner.Name(), r.MaxRetries+1, err)
}
