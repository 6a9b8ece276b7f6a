package querytool

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBackoffDelay = 2 * time.Second
)

// RetryPolicy governs the retry loop of a tool. A policy is built once per
// tool and treated as read-only afterwards.
type RetryPolicy struct {
	MaxAttempts  int
	BackoffDelay time.Duration
	// Multiplier scales the delay after every failed attempt. Values <= 1 keep
	// the delay constant.
	Multiplier float64
	// RetryOn lists the fault kinds worth another attempt. InvalidInput and
	// Canceled are never retried regardless of this set.
	RetryOn map[FaultKind]bool
}

// DefaultRetryOn is the retry-eligible set used when a policy leaves RetryOn nil.
func DefaultRetryOn() map[FaultKind]bool {
	return map[FaultKind]bool{
		FaultTransientNetwork: true,
		FaultProtocolChanged:  true,
		FaultRateLimited:      true,
		FaultUnclassified:     true,
	}
}

// DefaultRetryPolicy returns three attempts with a constant two second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		BackoffDelay: DefaultBackoffDelay,
		Multiplier:   1,
		RetryOn:      DefaultRetryOn(),
	}
}

// normalized fills zero values with defaults and copies RetryOn so later
// changes to the caller's map cannot leak into a running tool.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffDelay < 0 {
		p.BackoffDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	src := p.RetryOn
	if src == nil {
		src = DefaultRetryOn()
	}
	p.RetryOn = make(map[FaultKind]bool, len(src))
	for k, v := range src {
		p.RetryOn[k] = v
	}
	return p
}

// Retryable reports whether a fault of the given kind earns another attempt.
func (p RetryPolicy) Retryable(kind FaultKind) bool {
	switch kind {
	case FaultInvalidInput, FaultCanceled:
		return false
	}
	if p.RetryOn == nil {
		return DefaultRetryOn()[kind]
	}
	return p.RetryOn[kind]
}

// Delay returns the pause before the attempt following the given one (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BackoffDelay)
	for i := 1; i < attempt && p.Multiplier > 1; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// SleepFunc pauses between attempts. It returns early with ctx.Err() when the
// context ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
