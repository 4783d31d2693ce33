// Package csot carries per-operation deadline state (the caller's overall
// timeout, plus a marker that it is an operation-level timeout) through a context.Context so
// every suspension point in the stack — pool checkout, connection I/O,
// server selection — can enforce the same deadline.
package csot

import (
	"context"
	"time"
)

type timeoutKey struct{}

// MakeTimeoutContext returns a new context carrying a Timeout of the given
// Duration. A zero Duration means "no operation-level timeout".
func MakeTimeoutContext(ctx context.Context, to time.Duration) (context.Context, context.CancelFunc) {
	// Only use the passed in Duration as a timeout on the Context if it
	// is non-zero.
	cancelFunc := func() {}
	if to != 0 {
		ctx, cancelFunc = context.WithTimeout(ctx, to)
	}
	return context.WithValue(ctx, timeoutKey{}, true), cancelFunc
}

func IsTimeoutContext(ctx context.Context) bool {
	return ctx.Value(timeoutKey{}) != nil
}

// WithServerSelectionTimeout creates a context with a timeout that is the
// minimum of serverSelectionTimeoutMS and context deadline. The usage of
// non-positive values for serverSelectionTimeoutMS are an anti-pattern and are
// not considered in this calculation.
func WithServerSelectionTimeout(
	parent context.Context,
	serverSelectionTimeout time.Duration,
) (context.Context, context.CancelFunc) {
	var timeout time.Duration

	deadline, ok := parent.Deadline()
	if ok {
		timeout = time.Until(deadline)
	}

	// If there is no deadline on the parent context and the server selection
	// timeout DNE, then do nothing.
	if !ok && serverSelectionTimeout <= 0 {
		return parent, func() {}
	}

	// Otherwise, take the minimum of the two and return a new context with that
	// value as the deadline.
	if !ok {
		timeout = serverSelectionTimeout
	} else if timeout >= serverSelectionTimeout && serverSelectionTimeout > 0 {
		// Only use the serverSelectionTimeout value if it is less than the existing
		// timeout and is positive.
		timeout = serverSelectionTimeout
	}

	return context.WithTimeout(parent, timeout)
}
