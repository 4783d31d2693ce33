package csot

import (
	"context"
	"testing"
	"time"
)

func TestMakeTimeoutContextZeroDurationIsNoop(t *testing.T) {
	ctx, cancel := MakeTimeoutContext(context.Background(), 0)
	defer cancel()

	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline for a zero Duration")
	}
	if !IsTimeoutContext(ctx) {
		t.Fatalf("expected IsTimeoutContext to be true even with no deadline")
	}
}

func TestMakeTimeoutContextAppliesDeadline(t *testing.T) {
	ctx, cancel := MakeTimeoutContext(context.Background(), time.Minute)
	defer cancel()

	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected a deadline to be set")
	}
	if !IsTimeoutContext(ctx) {
		t.Fatalf("expected IsTimeoutContext to be true")
	}
}

func TestIsTimeoutContextFalseForPlainContext(t *testing.T) {
	if IsTimeoutContext(context.Background()) {
		t.Fatalf("expected a plain context to not be a timeout context")
	}
}

func TestWithServerSelectionTimeoutNoDeadlineNoStaticTimeout(t *testing.T) {
	ctx, cancel := WithServerSelectionTimeout(context.Background(), 0)
	defer cancel()

	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline when neither parent nor static timeout is set")
	}
}

func TestWithServerSelectionTimeoutUsesStaticTimeout(t *testing.T) {
	ctx, cancel := WithServerSelectionTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline derived from the static timeout")
	}
	if remaining := time.Until(dl); remaining <= 29*time.Second || remaining > 30*time.Second {
		t.Fatalf("expected ~30s remaining, got %s", remaining)
	}
}

func TestWithServerSelectionTimeoutPicksTighterParentDeadline(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer parentCancel()

	ctx, cancel := WithServerSelectionTimeout(parent, 30*time.Second)
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if remaining := time.Until(dl); remaining > 5*time.Second {
		t.Fatalf("expected the tighter parent deadline to win, got %s remaining", remaining)
	}
}

func TestWithServerSelectionTimeoutPicksTighterStaticTimeout(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()

	ctx, cancel := WithServerSelectionTimeout(parent, 5*time.Second)
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if remaining := time.Until(dl); remaining > 5*time.Second {
		t.Fatalf("expected the tighter static timeout to win, got %s remaining", remaining)
	}
}
