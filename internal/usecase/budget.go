package usecase

import (
	"context"
	"time"
)

// TimeBudget reports how much of an invocation's time remains.
type TimeBudget interface {
	RemainingMillis() int64
}

// BudgetFunc adapts a function to TimeBudget.
type BudgetFunc func() int64

func (f BudgetFunc) RemainingMillis() int64 { return f() }

// DeadlineBudget counts down to a fixed deadline.
type DeadlineBudget struct {
	Deadline time.Time
	Now      func() time.Time
}

// NewDeadlineBudget returns a budget expiring at deadline.
func NewDeadlineBudget(deadline time.Time) DeadlineBudget {
	return DeadlineBudget{Deadline: deadline, Now: time.Now}
}

func (b DeadlineBudget) RemainingMillis() int64 {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return b.Deadline.Sub(now()).Milliseconds()
}

// ContextBudget uses the context deadline when there is one, and fallback otherwise.
func ContextBudget(ctx context.Context, fallback time.Duration) DeadlineBudget {
	if deadline, ok := ctx.Deadline(); ok {
		return NewDeadlineBudget(deadline)
	}
	return NewDeadlineBudget(time.Now().Add(fallback))
}
