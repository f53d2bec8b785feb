package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings tunes the circuit breaker placed in front of a backend.
type BreakerSettings struct {
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultBreakerSettings returns conservative breaker thresholds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:      5,
		FailureRatio:     0.6,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Guarded trips open after repeated backend failures so a dead model service
// fails images fast instead of waiting for every timeout.
type Guarded struct {
	next    Client
	breaker *gobreaker.CircuitBreaker[*Result]
}

// NewGuarded wraps next with a circuit breaker.
func NewGuarded(name string, next Client, settings BreakerSettings, logger *zap.Logger) *Guarded {
	logger = logger.Named("classifier_breaker")
	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenMaxCalls,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Cancelled callers and bad inputs say nothing about backend health.
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrEmptyImage) ||
				errors.Is(err, ErrUnreadableImage)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Guarded{next: next, breaker: cb}
}

// Classify forwards to the wrapped client unless the circuit is open.
func (g *Guarded) Classify(ctx context.Context, image []byte) (*Result, error) {
	return g.breaker.Execute(func() (*Result, error) {
		return g.next.Classify(ctx, image)
	})
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
