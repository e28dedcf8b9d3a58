package reporter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/celo-oracle/internal/metrics"
)

func newTestBreaker(t *testing.T, enabled bool) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker(BreakerConfig{
		Enabled:                 enabled,
		PriceChangeThresholdMin: decimal.RequireFromString("0.1"),
		PriceChangeThresholdMax: decimal.RequireFromString("0.25"),
		TimeMultiplier:          decimal.RequireFromString("7200"),
		TripDuration:            20 * time.Minute,
	}, metrics.NewForTesting(), zerolog.Nop())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBreakerSmallMoveProceeds(t *testing.T) {
	b := newTestBreaker(t, true)
	now := time.Now()
	assert.NoError(t, b.Evaluate(now, d("1.00"), d("1.05")))
	assert.Equal(t, BreakerArmed, b.State(now))
}

func TestBreakerTripsOnLargeMove(t *testing.T) {
	b := newTestBreaker(t, true)
	now := time.Now()

	err := b.Evaluate(now, d("1.00"), d("1.30"))
	require.ErrorIs(t, err, ErrBreakerTripped)
	assert.Equal(t, BreakerTripped, b.State(now))

	// The next report inside the trip window stays suppressed, even for a
	// harmless move.
	err = b.Evaluate(now.Add(time.Minute), d("1.00"), d("1.01"))
	assert.ErrorIs(t, err, ErrBreakerTripped)
}

func TestBreakerAutoRearmsAfterTripDuration(t *testing.T) {
	b := newTestBreaker(t, true)
	now := time.Now()
	require.Error(t, b.Evaluate(now, d("1.00"), d("1.30")))

	later := now.Add(20*time.Minute + time.Second)
	assert.Equal(t, BreakerArmed, b.State(later))
	assert.NoError(t, b.Evaluate(later, d("1.00"), d("1.01")))
}

func TestBreakerManualRearm(t *testing.T) {
	b := newTestBreaker(t, true)
	now := time.Now()
	require.Error(t, b.Evaluate(now, d("1.00"), d("1.30")))

	b.Rearm()
	assert.NoError(t, b.Evaluate(now.Add(time.Second), d("1.00"), d("1.01")))
}

func TestBreakerDynamicCooldown(t *testing.T) {
	b := newTestBreaker(t, true)
	now := time.Now()

	// A 15% move is inside the cooldown band: the triggering submission
	// proceeds but starts a cooldown of 0.15 * 7200s = 1080s.
	require.NoError(t, b.Evaluate(now, d("1.00"), d("1.15")))
	assert.Equal(t, BreakerCooling, b.State(now))

	err := b.Evaluate(now.Add(17*time.Minute), d("1.15"), d("1.16"))
	assert.ErrorIs(t, err, ErrBreakerCooling)

	assert.NoError(t, b.Evaluate(now.Add(19*time.Minute), d("1.15"), d("1.16")))
}

func TestBreakerDisabled(t *testing.T) {
	b := newTestBreaker(t, false)
	now := time.Now()
	assert.NoError(t, b.Evaluate(now, d("1.00"), d("2.00")))
}

func TestBreakerFirstReportAlwaysProceeds(t *testing.T) {
	b := newTestBreaker(t, true)
	assert.NoError(t, b.Evaluate(time.Now(), decimal.Zero, d("1.00")))
}
