package pricesource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/exchange"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

// Leg is one hop of a price source: an adapter plus the flags controlling
// how its ticker folds into the source's effective price.
type Leg struct {
	Adapter exchange.Adapter
	// Invert uses the reciprocal of the leg's prices.
	Invert bool
	// IgnoreVolume makes the whole source contribute weight 1.
	IgnoreVolume bool
}

// Config tunes a source's fetch loop.
type Config struct {
	// FetchFrequency is the cadence of the fetch loop.
	FetchFrequency time.Duration
	// AggregationWindow bounds the observation buffer.
	AggregationWindow time.Duration
}

// Source is one configured price source: an ordered list of legs whose
// product yields the source's effective price for the oracle pair.
type Source struct {
	name    string
	index   int
	legs    []Leg
	buffer  *WindowedBuffer
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds a source from its ordered legs. index is the source's
// position in the configuration, used for stable ordering downstream.
func New(index int, legs []Leg, cfg Config, m *metrics.Metrics, log zerolog.Logger) (*Source, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("price source %d has no legs", index)
	}
	parts := make([]string, len(legs))
	for i, l := range legs {
		sym := l.Adapter.PairSymbol()
		if l.Invert {
			sym = sym + "(inv)"
		}
		parts[i] = fmt.Sprintf("%s:%s", l.Adapter.Exchange(), sym)
	}
	name := strings.Join(parts, "|")
	return &Source{
		name:    name,
		index:   index,
		legs:    legs,
		buffer:  NewWindowedBuffer(cfg.AggregationWindow),
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "price_source").Str("source", name).Logger(),
	}, nil
}

// Name returns the source's stable display name.
func (s *Source) Name() string { return s.name }

// Index returns the source's configuration position.
func (s *Source) Index() int { return s.index }

// Buffer exposes the source's observation window. The aggregator reads it;
// only the source's own loop writes.
func (s *Source) Buffer() *WindowedBuffer { return s.buffer }

// Valid reports whether the source currently has a fresh observation.
func (s *Source) Valid(now time.Time) bool {
	_, ok := s.buffer.LatestWithin(now)
	return ok
}

// Run fetches on the configured cadence until ctx is done. A failed tick
// is logged and metered; the next tick proceeds on schedule.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FetchFrequency)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Source) tick(ctx context.Context) {
	obs, err := s.fetchOnce(ctx)
	now := time.Now()
	if err != nil {
		s.log.Warn().Err(err).Msg("price source tick failed")
	} else if !s.buffer.Insert(obs) {
		s.log.Debug().Int64("timestamp", obs.Timestamp).Msg("dropped non-monotone observation")
	}
	if s.Valid(now) {
		s.metrics.SourceValidity.WithLabelValues(s.name).Set(1)
	} else {
		s.metrics.SourceValidity.WithLabelValues(s.name).Set(0)
	}
}

// fetchOnce drives every leg's adapter and folds the tickers into one
// observation.
func (s *Source) fetchOnce(ctx context.Context) (Observation, error) {
	tickers := make([]exchange.Ticker, len(s.legs))
	for i, leg := range s.legs {
		t, err := leg.Adapter.FetchTicker(ctx)
		if err != nil {
			return Observation{}, fmt.Errorf("leg %s: %w", leg.Adapter.Exchange(), err)
		}
		s.metrics.ObserveTicker(
			string(leg.Adapter.Exchange()),
			t.Bid.InexactFloat64(),
			t.Ask.InexactFloat64(),
			t.LastPrice.InexactFloat64(),
			t.BaseVolume.InexactFloat64(),
		)
		tickers[i] = t
	}
	return combineLegs(s.name, s.legs, tickers, time.Now())
}

// combineLegs computes a source's effective observation: prices are the
// product of leg prices (reciprocal for inverted legs), volume is the
// minimum leg base volume unless any leg ignores volume.
func combineLegs(name string, legs []Leg, tickers []exchange.Ticker, now time.Time) (Observation, error) {
	one := decimal.NewFromInt(1)
	bid, ask, mid, last := one, one, one, one
	var volume decimal.Decimal
	equalWeight := false

	for i, leg := range legs {
		t := tickers[i]
		legBid, legAsk, legMid, legLast := t.Bid, t.Ask, t.Mid(), t.LastPrice
		if leg.Invert {
			if t.Bid.IsZero() || t.Ask.IsZero() || legMid.IsZero() || t.LastPrice.IsZero() {
				return Observation{}, fmt.Errorf("cannot invert leg %s with zero price", leg.Adapter.Exchange())
			}
			// The reciprocal swaps the sides of the book.
			legBid = one.Div(t.Ask)
			legAsk = one.Div(t.Bid)
			legMid = one.Div(legMid)
			legLast = one.Div(t.LastPrice)
		}
		bid = bid.Mul(legBid)
		ask = ask.Mul(legAsk)
		mid = mid.Mul(legMid)
		last = last.Mul(legLast)

		if leg.IgnoreVolume {
			equalWeight = true
		}
		if i == 0 || t.BaseVolume.LessThan(volume) {
			volume = t.BaseVolume
		}
	}
	if equalWeight {
		volume = one
	}
	return Observation{
		Source:      name,
		Timestamp:   now.UnixMilli(),
		Bid:         bid,
		Ask:         ask,
		Mid:         mid,
		LastPrice:   last,
		Volume:      volume,
		EqualWeight: equalWeight,
	}, nil
}
