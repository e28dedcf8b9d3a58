// Package pricesource runs one fetch loop per configured price source and
// maintains each source's bounded, time-ordered window of observations.
package pricesource

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one immutable per-source price point.
type Observation struct {
	Source string
	// Timestamp is unix milliseconds at fetch completion.
	Timestamp int64
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Mid       decimal.Decimal
	LastPrice decimal.Decimal
	Volume    decimal.Decimal
	// EqualWeight is set when any leg ignores volume; the source then
	// contributes weight 1 to aggregation.
	EqualWeight bool
}

// WindowedBuffer is a time-ordered observation window with a single writer
// and many readers. Timestamps are monotone non-decreasing: an observation
// older than the newest entry is dropped, and entries older than the
// window are evicted on insert.
type WindowedBuffer struct {
	mu     sync.RWMutex
	window time.Duration
	obs    []Observation
}

// NewWindowedBuffer creates a buffer covering the given window duration.
func NewWindowedBuffer(window time.Duration) *WindowedBuffer {
	return &WindowedBuffer{window: window}
}

// Insert appends an observation, reporting false if it was dropped for
// violating timestamp monotonicity.
func (b *WindowedBuffer) Insert(o Observation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.obs); n > 0 && o.Timestamp < b.obs[n-1].Timestamp {
		return false
	}
	b.obs = append(b.obs, o)
	b.evict(o.Timestamp)
	return true
}

// evict drops entries older than the window, relative to the newest
// timestamp. Caller holds the write lock.
func (b *WindowedBuffer) evict(newest int64) {
	cutoff := newest - b.window.Milliseconds()
	i := 0
	for i < len(b.obs) && b.obs[i].Timestamp < cutoff {
		i++
	}
	if i > 0 {
		b.obs = append(b.obs[:0], b.obs[i:]...)
	}
}

// Latest returns the most recent observation.
func (b *WindowedBuffer) Latest() (Observation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.obs) == 0 {
		return Observation{}, false
	}
	return b.obs[len(b.obs)-1], true
}

// LatestWithin returns the most recent observation no older than the
// window relative to now.
func (b *WindowedBuffer) LatestWithin(now time.Time) (Observation, bool) {
	o, ok := b.Latest()
	if !ok {
		return Observation{}, false
	}
	if o.Timestamp < now.Add(-b.window).UnixMilli() {
		return Observation{}, false
	}
	return o, true
}

// Len returns the number of buffered observations.
func (b *WindowedBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.obs)
}
