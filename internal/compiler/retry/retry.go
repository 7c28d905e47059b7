// Package retry wraps a model call in bounded exponential backoff driven by
// the recovery classification of each failure.
package retry

import (
	"context"
	"math"
	"time"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/common/metrics"
)

// Config holds the backoff policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration

	// RetryRateLimits lets RetryAfterDelay failures loop internally. When false
	// they are returned on first occurrence for an outer scheduler to resubmit.
	RetryRateLimits bool
}

// DefaultConfig returns 3 retries, 1s base delay, x2 growth, 16s cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2.0,
		MaxDelay:   16 * time.Second,
	}
}

// State is the per-call retry bookkeeping.
type State struct {
	Attempt int
	Delay   time.Duration
	LastErr *errors.CompilerError
}

// Operation is one model call. attempt starts at 0.
type Operation func(ctx context.Context, attempt int) error

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller runs operations under a Config.
type Controller struct {
	config Config
	logger logger.Logger
	sleep  SleepFunc
}

func New(config Config, log logger.Logger) *Controller {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 16 * time.Second
	}
	return &Controller{config: config, logger: log, sleep: Sleep}
}

// WithSleep replaces the wait function.
func (c *Controller) WithSleep(fn SleepFunc) *Controller {
	c.sleep = fn
	return c
}

// WithMaxRetries returns a copy of c with a different retry budget. The
// sleep function and logger are shared.
func (c *Controller) WithMaxRetries(n int) *Controller {
	if n < 0 {
		n = 0
	}
	cp := *c
	cp.config.MaxRetries = n
	return &cp
}

// Config returns the effective policy.
func (c *Controller) Config() Config {
	return c.config
}

// Do calls op until it succeeds, fails with an error whose recovery action
// does not permit retrying, or runs out of attempts. The error of the last
// attempt is returned unchanged. Cancelling ctx during a backoff returns
// ctx.Err().
func (c *Controller) Do(ctx context.Context, op Operation) (State, error) {
	var state State
	for attempt := 0; ; attempt++ {
		state.Attempt = attempt

		err := op(ctx, attempt)
		if err == nil {
			return state, nil
		}
		if ctx.Err() != nil {
			return state, err
		}

		ce, ok := errors.AsCompilerError(err)
		if !ok {
			return state, err
		}
		state.LastErr = ce

		action := errors.Classify(ce)
		if !action.Retries() || attempt >= c.config.MaxRetries {
			return state, err
		}
		if action == errors.ActionRetryAfterDelay && !c.config.RetryRateLimits {
			return state, err
		}

		delay := c.Backoff(attempt)
		if action == errors.ActionRetryAfterDelay && ce.RetryAfter > delay {
			delay = ce.RetryAfter
		}
		state.Delay = delay

		metrics.RetriesScheduled.WithLabelValues(string(ce.Kind)).Inc()
		c.logger.Warn("Retrying model call", map[string]interface{}{
			"attempt":   attempt + 1,
			"delay":     delay,
			"errorKind": string(ce.Kind),
			"error":     ce.Error(),
		})

		if err := c.sleep(ctx, delay); err != nil {
			return state, err
		}
	}
}

// Backoff returns the delay after the given zero-based attempt.
func (c *Controller) Backoff(attempt int) time.Duration {
	d := float64(c.config.BaseDelay) * math.Pow(c.config.Multiplier, float64(attempt))
	if d > float64(c.config.MaxDelay) {
		return c.config.MaxDelay
	}
	return time.Duration(d)
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
