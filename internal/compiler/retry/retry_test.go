package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/common/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSleep captures delays instead of waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func createTestController(t *testing.T, cfg Config) (*Controller, *recordingSleep) {
	rec := &recordingSleep{}
	return New(cfg, logger.NewTestLogger(t)).WithSleep(rec.sleep), rec
}

// failing returns an operation that fails with errs in order, then succeeds.
func failing(calls *int, errs ...error) Operation {
	return func(ctx context.Context, attempt int) error {
		*calls++
		if attempt < len(errs) {
			return errs[attempt]
		}
		return nil
	}
}

// ==========================
// Backoff schedule
// ==========================

func TestController_ServerErrorExhaustsRetries(t *testing.T) {
	ctrl, rec := createTestController(t, DefaultConfig())

	original := errors.NewAPIError(500, "openai", "internal error")
	calls := 0
	op := func(ctx context.Context, attempt int) error {
		calls++
		return original
	}

	state, err := ctrl.Do(context.Background(), op)

	assert.Same(t, original, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
	assert.Equal(t, 3, state.Attempt)
	assert.Same(t, original, state.LastErr)
}

func TestController_WithMaxRetries(t *testing.T) {
	ctrl, rec := createTestController(t, DefaultConfig())
	single := ctrl.WithMaxRetries(1)

	calls := 0
	_, err := single.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.NewTimeoutError("openai", context.DeadlineExceeded)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)

	assert.Equal(t, 3, ctrl.Config().MaxRetries)
	assert.Equal(t, 0, ctrl.WithMaxRetries(-2).Config().MaxRetries)
}

func TestController_Backoff(t *testing.T) {
	ctrl := New(DefaultConfig(), logger.NewNoOpLogger())

	want := []time.Duration{1, 2, 4, 8, 16, 16, 16}
	for i, w := range want {
		assert.Equal(t, w*time.Second, ctrl.Backoff(i), "attempt %d", i)
	}
}

func TestController_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		errs       []error
		wantErr    errors.ErrorKind
		wantCalls  int
		wantDelays []time.Duration
	}{
		{
			name:      "success first try",
			config:    DefaultConfig(),
			wantCalls: 1,
		},
		{
			name:       "timeout then success",
			config:     DefaultConfig(),
			errs:       []error{errors.NewTimeoutError("openai", context.DeadlineExceeded)},
			wantCalls:  2,
			wantDelays: []time.Duration{time.Second},
		},
		{
			name:      "client error is not retried",
			config:    DefaultConfig(),
			errs:      []error{errors.NewAPIError(401, "openai", "unauthorized")},
			wantErr:   errors.KindClientError,
			wantCalls: 1,
		},
		{
			name:      "extraction failure is not retried",
			config:    DefaultConfig(),
			errs:      []error{errors.NewExplanatoryTextError("Here is the result:")},
			wantErr:   errors.KindExplanatoryText,
			wantCalls: 1,
		},
		{
			name:      "sentinel is not retried",
			config:    DefaultConfig(),
			errs:      []error{errors.NewMissingInformationError("Domain X undefined")},
			wantErr:   errors.KindMissingInformation,
			wantCalls: 1,
		},
		{
			name:      "rate limit surfaced on first occurrence",
			config:    DefaultConfig(),
			errs:      []error{errors.NewRateLimitError("openai", 30*time.Second, "")},
			wantErr:   errors.KindRateLimit,
			wantCalls: 1,
		},
		{
			name: "rate limit honours larger retry_after when enabled",
			config: Config{
				MaxRetries: 3, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 16 * time.Second,
				RetryRateLimits: true,
			},
			errs: []error{
				errors.NewRateLimitError("openai", 7*time.Second, ""),
				errors.NewRateLimitError("openai", 0, ""),
			},
			wantCalls:  3,
			wantDelays: []time.Duration{7 * time.Second, 2 * time.Second},
		},
		{
			name:      "zero retries",
			config:    Config{MaxRetries: 0},
			errs:      []error{errors.NewAPIError(503, "vllm", "")},
			wantErr:   errors.KindServerError,
			wantCalls: 1,
		},
		{
			name:      "negative retries treated as zero",
			config:    Config{MaxRetries: -2},
			errs:      []error{errors.NewTimeoutError("ollama", nil)},
			wantErr:   errors.KindTimeout,
			wantCalls: 1,
		},
		{
			name:       "wrapped deadline is a timeout",
			config:     DefaultConfig(),
			errs:       []error{fmt.Errorf("post: %w", context.DeadlineExceeded)},
			wantCalls:  2,
			wantDelays: []time.Duration{time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, rec := createTestController(t, tt.config)
			calls := 0

			_, err := ctrl.Do(context.Background(), failing(&calls, tt.errs...))

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsKind(err, tt.wantErr), "got %v", err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantDelays, rec.delays)
		})
	}
}

// ==========================
// Cancellation
// ==========================

func TestController_CancelDuringBackoff(t *testing.T) {
	ctrl := New(Config{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 2, MaxDelay: time.Hour}, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(ctx context.Context, attempt int) error {
		calls++
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		return errors.NewAPIError(502, "openai", "bad gateway")
	}

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Do(ctx, op)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestController_CancelledOperationStops(t *testing.T) {
	ctrl, rec := createTestController(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := ctrl.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return ctx.Err()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
