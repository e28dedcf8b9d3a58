// Package reporter decides when to submit prices on-chain and applies the
// safety rails around submission: the price-move circuit breaker and the
// gas-bumped transaction retry policy.
package reporter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/metrics"
)

// BreakerState is the circuit breaker's current disposition.
type BreakerState string

const (
	// BreakerArmed allows submissions.
	BreakerArmed BreakerState = "armed"
	// BreakerCooling allows nothing until the dynamic cooldown elapses.
	BreakerCooling BreakerState = "cooling"
	// BreakerTripped blocks submissions until the trip duration elapses or
	// an operator re-arms.
	BreakerTripped BreakerState = "tripped"
)

// Breaker suppression errors.
var (
	ErrBreakerTripped = errors.New("circuit breaker tripped")
	ErrBreakerCooling = errors.New("circuit breaker cooling down")
)

// BreakerConfig tunes the price-move circuit breaker.
type BreakerConfig struct {
	Enabled bool
	// PriceChangeThresholdMin starts the dynamic cooldown band.
	PriceChangeThresholdMin decimal.Decimal
	// PriceChangeThresholdMax trips the breaker outright.
	PriceChangeThresholdMax decimal.Decimal
	// TimeMultiplier converts a relative price change into cooldown
	// seconds: cooldown = delta * multiplier.
	TimeMultiplier decimal.Decimal
	// TripDuration is how long a trip blocks submissions before the
	// automatic re-arm.
	TripDuration time.Duration
}

// CircuitBreaker guards submission against excessive price moves.
// A trip clears automatically after TripDuration; Rearm is the operator
// override that clears it immediately.
type CircuitBreaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	state   BreakerState
	tripped time.Time
	cooling time.Time
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewCircuitBreaker builds an armed breaker.
func NewCircuitBreaker(cfg BreakerConfig, m *metrics.Metrics, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:     cfg,
		state:   BreakerArmed,
		metrics: m,
		log:     log.With().Str("component", "circuit_breaker").Logger(),
	}
}

// State returns the breaker's current state, resolving any elapsed
// cooldown or trip at now.
func (b *CircuitBreaker) State(now time.Time) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolve(now)
	return b.state
}

// resolve applies time-based transitions. Caller holds the lock.
func (b *CircuitBreaker) resolve(now time.Time) {
	switch b.state {
	case BreakerTripped:
		if now.Sub(b.tripped) >= b.cfg.TripDuration {
			b.transition(BreakerArmed)
		}
	case BreakerCooling:
		if !now.Before(b.cooling) {
			b.transition(BreakerArmed)
		}
	}
}

// Evaluate decides whether a submission moving the reported price from
// last to next may proceed at now. A nil return permits submission; it
// may also start a cooldown that suppresses subsequent reports.
func (b *CircuitBreaker) Evaluate(now time.Time, last, next decimal.Decimal) error {
	if !b.cfg.Enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolve(now)

	switch b.state {
	case BreakerTripped:
		return fmt.Errorf("%w: %s remaining", ErrBreakerTripped, b.cfg.TripDuration-now.Sub(b.tripped))
	case BreakerCooling:
		return fmt.Errorf("%w: %s remaining", ErrBreakerCooling, b.cooling.Sub(now))
	}

	if last.IsZero() {
		return nil
	}
	delta := next.Sub(last).Abs().Div(last)

	if delta.GreaterThanOrEqual(b.cfg.PriceChangeThresholdMax) {
		b.tripped = now
		b.transition(BreakerTripped)
		b.log.Warn().
			Str("delta", delta.String()).
			Str("threshold", b.cfg.PriceChangeThresholdMax.String()).
			Msg("price move tripped circuit breaker")
		return fmt.Errorf("%w: price moved %s", ErrBreakerTripped, delta)
	}

	if delta.GreaterThanOrEqual(b.cfg.PriceChangeThresholdMin) {
		cooldown := time.Duration(delta.Mul(b.cfg.TimeMultiplier).InexactFloat64() * float64(time.Second))
		until := now.Add(cooldown)
		if until.After(b.cooling) {
			b.cooling = until
		}
		b.transition(BreakerCooling)
		b.log.Warn().
			Str("delta", delta.String()).
			Dur("cooldown", cooldown).
			Msg("price move started circuit breaker cooldown")
	}
	return nil
}

// Rearm is the operator override: it clears any trip or cooldown.
func (b *CircuitBreaker) Rearm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerArmed {
		b.log.Warn().Str("from", string(b.state)).Msg("circuit breaker manually re-armed")
		b.transition(BreakerArmed)
	}
}

// transition records a state change. Caller holds the lock.
func (b *CircuitBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.metrics.RecordBreakerTransition(string(b.state), string(to))
	b.state = to
}
