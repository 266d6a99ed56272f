package extractor

import (
	"context"
	"time"
)

// Budget is the wall-clock allowance of one invocation.
type Budget struct {
	Start    time.Time
	Deadline time.Time
	Margin   time.Duration
}

// NewBudget takes the deadline from ctx when the runtime set one, otherwise
// start+fallback.
func NewBudget(ctx context.Context, start time.Time, fallback, margin time.Duration) Budget {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = start.Add(fallback)
	}
	return Budget{Start: start, Deadline: deadline, Margin: margin}
}

// Exceeded reports whether now is past the deadline minus the safety margin.
func (b Budget) Exceeded(now time.Time) bool {
	return now.After(b.Deadline.Add(-b.Margin))
}

// Remaining returns the time left before the margin starts. Never negative.
func (b Budget) Remaining(now time.Time) time.Duration {
	left := b.Deadline.Add(-b.Margin).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
