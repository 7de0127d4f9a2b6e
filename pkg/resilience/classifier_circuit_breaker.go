// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name                string        // Name for logging/metrics
	ConsecutiveFailures uint32        // Consecutive failures before opening (default: 5)
	MinRequests         uint32        // Minimum requests before the failure ratio applies (default: 10)
	FailureRatio        float64       // Failure ratio that opens the circuit (default: 0.6)
	MaxHalfOpenRequests uint32        // Requests allowed while half-open (default: 3)
	Interval            time.Duration // Counter reset interval while closed (default: 60s)
	Timeout             time.Duration // Time spent open before half-open (default: 30s)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                name,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
		MaxHalfOpenRequests: 3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// NewCircuitBreaker builds a gobreaker circuit breaker that logs state transitions.
func NewCircuitBreaker(cfg *CircuitBreakerConfig, log zerolog.Logger) *gobreaker.CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig("default")
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// Execute runs fn through the breaker and returns its typed result.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}
