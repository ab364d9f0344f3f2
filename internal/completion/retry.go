package completion

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout bounds each individual call.
	AttemptTimeout time.Duration
}

// Retrying wraps a Completer with per-attempt timeouts and bounded retries on
// transient failures. Completion calls have no side effects, so repeating
// them is safe.
type Retrying struct {
	next   Completer
	cfg    RetryConfig
	logger *zap.Logger
}

func NewRetrying(next Completer, cfg RetryConfig, logger *zap.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

func (r *Retrying) Complete(ctx context.Context, req Request) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := sleep(ctx, backoff(attempt, r.cfg.InitialBackoff, r.cfg.MaxBackoff)); err != nil {
			return nil, err
		}

		result, err := r.attempt(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The caller's own deadline or cancellation ends retries
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, err
		}

		r.logger.Warn("Completion attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts))
	}

	return nil, lastErr
}

func (r *Retrying) attempt(ctx context.Context, req Request) (*Result, error) {
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}
	return r.next.Complete(ctx, req)
}

// backoff returns a full-jitter delay: random(0, min(max, initial*2^(attempt-1)))
func backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 || initial <= 0 {
		return 0
	}

	delay := initial << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	if delay <= 0 {
		return 0
	}

	return rand.N(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
