// Package exchange implements the venue adapter framework: a uniform
// contract over heterogeneous exchange APIs plus the shared fetch pipeline
// (certificate pinning, liveness gating, timeouts, metrics) that drives it.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// clockSkewTolerance bounds how far in the future a venue timestamp may be
// before the ticker is rejected.
const clockSkewTolerance = 5 * time.Second

// Ticker is one validated spot-market observation from a venue.
type Ticker struct {
	Exchange    currency.Exchange
	Symbol      string
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	LastPrice   decimal.Decimal
	BaseVolume  decimal.Decimal
	QuoteVolume decimal.Decimal
	// Timestamp is unix milliseconds as reported by the venue, or the fetch
	// time for venues that do not timestamp their tickers.
	Timestamp int64
}

// Mid returns (bid + ask) / 2.
func (t Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Adapter is the per-venue driver contract. Implementations are stateless
// beyond their configuration and safe for concurrent use.
type Adapter interface {
	// Exchange returns the venue identifier.
	Exchange() currency.Exchange
	// Pair returns the configured currency pair.
	Pair() currency.Pair
	// PairSymbol returns the venue's native symbol for the configured pair.
	PairSymbol() string
	// FetchTicker returns a validated ticker, failing if the venue's
	// orderbook is not live.
	FetchTicker(ctx context.Context) (Ticker, error)
	// IsOrderbookLive reports whether the venue's ticker data is currently
	// trustworthy, per the venue-specific liveness predicate.
	IsOrderbookLive(ctx context.Context) (bool, error)
}

// baseAdapter carries the state every venue driver shares.
type baseAdapter struct {
	exchange currency.Exchange
	pair     currency.Pair
	client   *Client
	log      zerolog.Logger
}

func newBaseAdapter(ex currency.Exchange, pair currency.Pair, client *Client, log zerolog.Logger) baseAdapter {
	return baseAdapter{
		exchange: ex,
		pair:     pair,
		client:   client,
		log:      log.With().Str("adapter", string(ex)).Logger(),
	}
}

func (b *baseAdapter) Exchange() currency.Exchange { return b.exchange }
func (b *baseAdapter) Pair() currency.Pair         { return b.pair }

// ensureLive runs the liveness gate the fetch pipeline applies before any
// non-status request.
func (b *baseAdapter) ensureLive(ctx context.Context, a Adapter) error {
	live, err := a.IsOrderbookLive(ctx)
	if err != nil {
		return fmt.Errorf("orderbook liveness check: %w", err)
	}
	if !live {
		return ErrOrderbookDown
	}
	return nil
}

// venueTokenOverrides maps tokens whose venue-native symbol differs from
// the canonical one.
var venueTokenOverrides = map[currency.Exchange]map[currency.Currency]string{
	currency.Coinbase: {currency.CELO: "CGLD"},
	currency.BitMart:  {currency.EUROC: "EURC"},
}

// venueToken resolves the venue-native token symbol for a currency,
// starting from the canonical name and applying per-venue overrides.
func venueToken(ex currency.Exchange, c currency.Currency) string {
	if o, ok := venueTokenOverrides[ex][c]; ok {
		return o
	}
	return string(c)
}

// joinSymbol derives a venue symbol as base+sep+quote in venue tokens.
func joinSymbol(ex currency.Exchange, pair currency.Pair, sep string) string {
	return venueToken(ex, pair.Base) + sep + venueToken(ex, pair.Quote)
}

// tickerFields is the raw string form of a venue ticker, fed through
// buildTicker for field-presence and invariant validation.
type tickerFields struct {
	bid         string
	ask         string
	lastPrice   string
	baseVolume  string
	quoteVolume string // optional; derived from lastPrice*baseVolume when empty
	timestamp   int64  // unix ms; 0 means the venue provides none
	hasTS       bool   // whether the venue is expected to timestamp tickers
}

// buildTicker validates the raw fields and assembles a Ticker. Missing or
// non-numeric required fields are reported in one aggregated error naming
// every offender.
func buildTicker(ex currency.Exchange, symbol string, now time.Time, f tickerFields) (Ticker, error) {
	var missing []string
	parse := func(name, raw string) decimal.Decimal {
		if raw == "" {
			missing = append(missing, name)
			return decimal.Zero
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			missing = append(missing, name)
			return decimal.Zero
		}
		return d
	}

	t := Ticker{Exchange: ex, Symbol: symbol}
	t.Bid = parse("bid", f.bid)
	t.Ask = parse("ask", f.ask)
	t.LastPrice = parse("lastPrice", f.lastPrice)
	t.BaseVolume = parse("baseVolume", f.baseVolume)
	if f.hasTS && f.timestamp == 0 {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return Ticker{}, fmt.Errorf("ticker response missing required fields: %s", strings.Join(missing, ", "))
	}

	if f.quoteVolume != "" {
		qv, err := decimal.NewFromString(f.quoteVolume)
		if err != nil {
			return Ticker{}, fmt.Errorf("ticker field quoteVolume is not numeric: %q", f.quoteVolume)
		}
		t.QuoteVolume = qv
	} else {
		t.QuoteVolume = t.LastPrice.Mul(t.BaseVolume)
	}

	t.Timestamp = f.timestamp
	if t.Timestamp == 0 {
		t.Timestamp = now.UnixMilli()
	}

	if err := verifyTicker(t, now); err != nil {
		return Ticker{}, err
	}
	return t, nil
}

// verifyTicker enforces the cross-venue ticker invariants.
func verifyTicker(t Ticker, now time.Time) error {
	if t.Bid.GreaterThan(t.Ask) {
		return fmt.Errorf("ticker bid %s exceeds ask %s", t.Bid, t.Ask)
	}
	for _, v := range []struct {
		name string
		d    decimal.Decimal
	}{
		{"bid", t.Bid},
		{"ask", t.Ask},
		{"lastPrice", t.LastPrice},
		{"baseVolume", t.BaseVolume},
		{"quoteVolume", t.QuoteVolume},
	} {
		if v.d.IsNegative() {
			return fmt.Errorf("ticker field %s is negative: %s", v.name, v.d)
		}
	}
	if t.Timestamp > now.Add(clockSkewTolerance).UnixMilli() {
		return fmt.Errorf("ticker timestamp %d is in the future", t.Timestamp)
	}
	return nil
}
