package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGuardedOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	backend := Func(func(ctx context.Context, image []byte) (*Result, error) {
		calls++
		return nil, errors.New("model server down")
	})
	g := NewGuarded("test", backend, BreakerSettings{
		MinRequests:      2,
		FailureRatio:     0.5,
		OpenTimeout:      time.Minute,
		HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := g.Classify(context.Background(), []byte("img")); err == nil {
			t.Fatal("expected backend error")
		}
	}

	_, err := g.Classify(context.Background(), []byte("img"))
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected backend to be skipped while open, got %d calls", calls)
	}
}

func TestGuardedPassesResultsThrough(t *testing.T) {
	backend := Func(func(ctx context.Context, image []byte) (*Result, error) {
		return &Result{Label: "dent", Confidence: 0.8}, nil
	})
	g := NewGuarded("test", backend, DefaultBreakerSettings(), zap.NewNop())

	res, err := g.Classify(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if res.Label != "dent" || res.Confidence != 0.8 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGuardedIgnoresCancelledCallers(t *testing.T) {
	backend := Func(func(ctx context.Context, image []byte) (*Result, error) {
		return nil, context.Canceled
	})
	g := NewGuarded("test", backend, BreakerSettings{MinRequests: 1, FailureRatio: 0.1, OpenTimeout: time.Minute, HalfOpenMaxCalls: 1}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := g.Classify(context.Background(), nil)
		if IsCircuitOpen(err) {
			t.Fatalf("breaker opened on cancellations at call %d", i)
		}
	}
}

func TestGuardedStaysClosedOnUnreadableImages(t *testing.T) {
	backend := Func(func(ctx context.Context, image []byte) (*Result, error) {
		if string(image) == "good" {
			return &Result{Label: "dent", Confidence: 0.9}, nil
		}
		return nil, fmt.Errorf("%w: status 400", ErrUnreadableImage)
	})
	g := NewGuarded("test", backend, DefaultBreakerSettings(), zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := g.Classify(context.Background(), []byte("junk"))
		if !errors.Is(err, ErrUnreadableImage) {
			t.Fatalf("call %d: expected unreadable image error, got %v", i, err)
		}
	}

	res, err := g.Classify(context.Background(), []byte("good"))
	if err != nil {
		t.Fatalf("expected healthy image to be classified, got %v", err)
	}
	if res.Label != "dent" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
