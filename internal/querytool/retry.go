package querytool

import (
	"context"
	"fmt"
	"log/slog"
)

// Option configures a tool.
type Option func(*retrier)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *retrier) { r.policy = p.normalized() }
}

// WithSleep replaces the pause used between attempts.
func WithSleep(sleep SleepFunc) Option {
	return func(r *retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithLogger sets the logger used to report attempts and faults.
func WithLogger(l *slog.Logger) Option {
	return func(r *retrier) {
		if l != nil {
			r.log = l
		}
	}
}

// retrier runs one provider call under a RetryPolicy.
type retrier struct {
	policy RetryPolicy
	sleep  SleepFunc
	log    *slog.Logger
}

func newRetrier(tool string, opts []Option) retrier {
	r := retrier{
		policy: DefaultRetryPolicy(),
		sleep:  Sleep,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	r.log = r.log.With("component", "querytool", "tool", tool)
	return r
}

// attemptFunc performs a single provider call. A nil error means the returned
// Result is final; a non-nil error is classified and possibly retried.
type attemptFunc func(ctx context.Context) (Result, error)

func (r retrier) run(ctx context.Context, input string, call attemptFunc) Result {
	maxAttempts := r.policy.MaxAttempts
	for attempt := 1; ; attempt++ {
		r.log.Debug("executing query", "input", input, "attempt", attempt, "max_attempts", maxAttempts)

		res, err := call(ctx)
		if err == nil {
			res.Attempts = attempt
			if res.Failure != nil {
				res.Failure.Attempts = attempt
			}
			return res
		}

		kind := Classify(err)
		msg := err.Error()
		if kind == FaultUnclassified || kind == FaultRateLimited {
			msg = fmt.Sprintf("%s: %s", faultTypeName(err), msg)
		}
		r.log.Error("query failed", "input", input, "attempt", attempt, "fault", string(kind), "error", err)

		if attempt >= maxAttempts || !r.policy.Retryable(kind) {
			return Failed(kind, msg, attempt)
		}

		delay := r.policy.Delay(attempt)
		r.log.Info("retrying query", "input", input, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return Failed(FaultCanceled, err.Error(), attempt)
		}
	}
}
