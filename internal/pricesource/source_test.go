package pricesource

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/exchange"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ticker(ex currency.Exchange, bid, ask, last, volume string) exchange.Ticker {
	return exchange.Ticker{
		Exchange:   ex,
		Symbol:     "TEST",
		Bid:        d(bid),
		Ask:        d(ask),
		LastPrice:  d(last),
		BaseVolume: d(volume),
		Timestamp:  time.Now().UnixMilli(),
	}
}

// fakeAdapter satisfies exchange.Adapter with a canned ticker.
type fakeAdapter struct {
	ex   currency.Exchange
	tick exchange.Ticker
	err  error
}

func (f *fakeAdapter) Exchange() currency.Exchange { return f.ex }
func (f *fakeAdapter) Pair() currency.Pair {
	return currency.Pair{Base: currency.CELO, Quote: currency.USD}
}
func (f *fakeAdapter) PairSymbol() string { return "CELOUSD" }
func (f *fakeAdapter) FetchTicker(context.Context) (exchange.Ticker, error) {
	return f.tick, f.err
}
func (f *fakeAdapter) IsOrderbookLive(context.Context) (bool, error) { return f.err == nil, f.err }

func TestCombineLegsSingle(t *testing.T) {
	legs := []Leg{{Adapter: &fakeAdapter{ex: currency.Coinbase}}}
	tickers := []exchange.Ticker{ticker(currency.Coinbase, "0.45", "0.47", "0.46", "1000")}

	obs, err := combineLegs("src", legs, tickers, time.Now())
	require.NoError(t, err)
	assert.True(t, obs.Mid.Equal(d("0.46")), "mid %s", obs.Mid)
	assert.True(t, obs.Volume.Equal(d("1000")))
	assert.False(t, obs.EqualWeight)
}

func TestCombineLegsProductAndMinVolume(t *testing.T) {
	legs := []Leg{
		{Adapter: &fakeAdapter{ex: currency.Binance}},
		{Adapter: &fakeAdapter{ex: currency.Coinbase}},
	}
	// CELO/USDT at mid 0.5 and USDT/USD at mid 1.0: effective mid 0.5.
	tickers := []exchange.Ticker{
		ticker(currency.Binance, "0.49", "0.51", "0.50", "1000"),
		ticker(currency.Coinbase, "0.99", "1.01", "1.00", "600"),
	}

	obs, err := combineLegs("src", legs, tickers, time.Now())
	require.NoError(t, err)
	assert.True(t, obs.Mid.Equal(d("0.5")), "mid %s", obs.Mid)
	assert.True(t, obs.Volume.Equal(d("600")), "volume %s", obs.Volume)
}

func TestCombineLegsInvert(t *testing.T) {
	legs := []Leg{{Adapter: &fakeAdapter{ex: currency.Bitcointrade}, Invert: true}}
	tickers := []exchange.Ticker{ticker(currency.Bitcointrade, "4", "5", "4", "100")}

	obs, err := combineLegs("src", legs, tickers, time.Now())
	require.NoError(t, err)
	// Inversion swaps the book sides: bid = 1/ask, ask = 1/bid.
	assert.True(t, obs.Bid.Equal(d("0.2")), "bid %s", obs.Bid)
	assert.True(t, obs.Ask.Equal(d("0.25")), "ask %s", obs.Ask)
	assert.True(t, obs.LastPrice.Equal(d("0.25")))
}

func TestCombineLegsIgnoreVolume(t *testing.T) {
	legs := []Leg{
		{Adapter: &fakeAdapter{ex: currency.Kraken}},
		{Adapter: &fakeAdapter{ex: currency.Alphavantage}, IgnoreVolume: true},
	}
	tickers := []exchange.Ticker{
		ticker(currency.Kraken, "0.45", "0.47", "0.46", "1000"),
		ticker(currency.Alphavantage, "1", "1", "1", "1"),
	}

	obs, err := combineLegs("src", legs, tickers, time.Now())
	require.NoError(t, err)
	assert.True(t, obs.EqualWeight)
	assert.True(t, obs.Volume.Equal(d("1")))
}

func TestCombineLegsRejectsZeroPriceInversion(t *testing.T) {
	legs := []Leg{{Adapter: &fakeAdapter{ex: currency.Kraken}, Invert: true}}
	tickers := []exchange.Ticker{ticker(currency.Kraken, "0", "0", "0", "100")}

	_, err := combineLegs("src", legs, tickers, time.Now())
	assert.Error(t, err)
}

func TestSourceTickInsertsObservation(t *testing.T) {
	adapter := &fakeAdapter{ex: currency.Coinbase, tick: ticker(currency.Coinbase, "0.45", "0.47", "0.46", "1000")}
	src, err := New(0, []Leg{{Adapter: adapter}}, Config{
		FetchFrequency:    time.Second,
		AggregationWindow: time.Minute,
	}, metrics.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)

	src.tick(context.Background())

	obs, ok := src.Buffer().Latest()
	require.True(t, ok)
	assert.True(t, obs.Mid.Equal(d("0.46")))
	assert.True(t, src.Valid(time.Now()))
}

func TestSourceTickFailureLeavesBufferEmpty(t *testing.T) {
	adapter := &fakeAdapter{ex: currency.Coinbase, err: exchange.ErrOrderbookDown}
	src, err := New(0, []Leg{{Adapter: adapter}}, Config{
		FetchFrequency:    time.Second,
		AggregationWindow: time.Minute,
	}, metrics.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)

	src.tick(context.Background())

	assert.Equal(t, 0, src.Buffer().Len())
	assert.False(t, src.Valid(time.Now()))
}

func TestSourceNameIncludesLegs(t *testing.T) {
	src, err := New(2, []Leg{
		{Adapter: &fakeAdapter{ex: currency.Binance}},
		{Adapter: &fakeAdapter{ex: currency.Coinbase}, Invert: true},
	}, Config{FetchFrequency: time.Second, AggregationWindow: time.Minute},
		metrics.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "BINANCE:CELOUSD|COINBASE:CELOUSD(inv)", src.Name())
	assert.Equal(t, 2, src.Index())
}
