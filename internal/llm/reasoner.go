package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Reasoner wraps a Client with a fixed-interval throttle and bounded retries.
// It is the only component the stage engine talks to.
type Reasoner struct {
	client  Client
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	calls   atomic.Int64
}

// NewReasoner creates a Reasoner. A nil logger disables logging.
func NewReasoner(client Client, policy RetryPolicy, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if policy.MinCallDelay > 0 {
		limit = rate.Every(policy.MinCallDelay)
	}
	return &Reasoner{
		client:  client,
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Calls returns the number of service calls attempted so far.
func (r *Reasoner) Calls() int64 {
	return r.calls.Load()
}

// Submit sends prompt through the throttle, retrying RateLimited and
// Transient failures per the policy. Exhausted retries fail closed as Fatal.
// Context cancellation is returned unwrapped.
func (r *Reasoner) Submit(ctx context.Context, prompt string, opts Options) (string, error) {
	rateRetries, transientRetries := 0, 0

	for attempt := 1; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", Fatal("throttle wait failed", err)
		}

		r.calls.Add(1)
		text, err := r.client.Submit(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var ce *ClientError
		if !errors.As(err, &ce) {
			ce = Transient("unclassified client error", err)
		}

		switch ce.Kind {
		case KindRateLimited:
			if rateRetries >= r.policy.MaxRateLimitRetries {
				return "", Fatal(fmt.Sprintf("rate limited after %d attempts", attempt), ce)
			}
			wait := r.backoff(rateRetries, ce.RetryAfter)
			rateRetries++
			r.logger.Warn("rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			if err := r.sleep(ctx, wait); err != nil {
				return "", err
			}
		case KindTransient:
			if transientRetries >= r.policy.TransientRetries {
				return "", Fatal(fmt.Sprintf("%s (after %d attempts)", ce.Detail, attempt), ce)
			}
			wait := r.backoff(transientRetries, 0)
			transientRetries++
			r.logger.Warn("transient reasoning error, retrying",
				zap.Int("attempt", attempt),
				zap.String("detail", ce.Detail),
				zap.Duration("wait", wait))
			if err := r.sleep(ctx, wait); err != nil {
				return "", err
			}
		default:
			return "", ce
		}
	}
}

// backoff returns BackoffBase * 2^retry, raised to hint and capped at BackoffMax.
func (r *Reasoner) backoff(retry int, hint time.Duration) time.Duration {
	wait := r.policy.BackoffBase << uint(retry)
	if hint > wait {
		wait = hint
	}
	if r.policy.BackoffMax > 0 && wait > r.policy.BackoffMax {
		wait = r.policy.BackoffMax
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
