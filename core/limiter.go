package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStepLimitExceeded is returned once a StepLimiter has been exhausted.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// StepLimiter bounds the number of model steps an agent may take while
// answering a single chat call.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter allowing max steps.
// If max == 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment records a step and returns an error if the limit is exceeded.
func (l *StepLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrStepLimitExceeded, l.max)
	}

	return nil
}

// Count returns the number of steps taken.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many steps are left before hitting the limit.
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}
