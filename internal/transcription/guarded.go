package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/resilience"
)

// GuardedConfig configures NewGuarded
type GuardedConfig struct {
	Breaker resilience.CircuitBreakerConfig
	Retry   *resilience.RetryConfig // nil makes a single attempt
}

// Guarded wraps a Provider with a circuit breaker, optional retry of
// network failures, and provider metrics.
type Guarded struct {
	inner   Provider
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
}

// NewGuarded creates a guarded provider. The breaker counts only
// unavailable and upstream failures; client mistakes never open it.
func NewGuarded(inner Provider, cfg GuardedConfig) *Guarded {
	bc := cfg.Breaker
	bc.IsFailure = countsAgainstBreaker
	bc.OnStateChange = func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger := observability.GetLogger()
		logger.Warn().
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}

	retry := cfg.Retry
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}

	g := &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(inner.Name(), bc),
		retry:   retry,
	}
	observability.UpdateCircuitBreakerState(inner.Name(), int(resilience.StateClosed))
	return g
}

func (g *Guarded) Name() string {
	return g.inner.Name()
}

func (g *Guarded) Ready() error {
	return g.inner.Ready()
}

// Healthy reports configuration problems and an open circuit. Once the
// reset timeout passes the provider reads as ready again so a trial request
// can reach it.
func (g *Guarded) Healthy() error {
	if err := g.inner.Ready(); err != nil {
		return err
	}
	if g.breaker.Rejecting() {
		_, requests, failures, _ := g.breaker.GetStats()
		return fmt.Errorf("%w: %d of %d requests failed", resilience.ErrCircuitOpen, failures, requests)
	}
	return nil
}

func (g *Guarded) Transcribe(ctx context.Context, req Request) (*Result, error) {
	// Configuration problems are not the upstream's fault
	if err := g.inner.Ready(); err != nil {
		return nil, err
	}

	var result *Result
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		start := time.Now()
		err := g.breaker.Call(func() error {
			r, err := g.inner.Transcribe(ctx, req)
			if err != nil {
				return err
			}
			result = r
			return nil
		})

		if errors.Is(err, resilience.ErrCircuitOpen) {
			observability.RecordError("circuit_open", g.Name())
			return &Error{Kind: KindUnavailable, Message: MsgUnavailable, Err: err}
		}

		observability.RecordProviderCall(g.Name(), time.Since(start), err == nil)
		if err != nil && countsAgainstBreaker(err) {
			observability.IncrementCircuitBreakerFailures(g.Name())
		}
		return err
	}, g.retry, isRetryable)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindUnavailable, KindUpstream:
		return true
	default:
		return false
	}
}

func isRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
