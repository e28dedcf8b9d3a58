package exchange

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// alphavantageTimeLayout is the venue's "Last Refreshed" format, in UTC.
const alphavantageTimeLayout = "2006-01-02 15:04:05"

// alphavantageAdapter drives the Alphavantage FX rate API. Rates carry no
// orderbook, so bid and ask are the rate rounded down and up at six
// decimal places and volumes contribute equal weight.
type alphavantageAdapter struct {
	baseAdapter
	baseURL string
	apiKey  string
}

func newAlphavantageAdapter(pair currency.Pair, client *Client, apiKey string, log zerolog.Logger) *alphavantageAdapter {
	return &alphavantageAdapter{
		baseAdapter: newBaseAdapter(currency.Alphavantage, pair, client, log),
		baseURL:     "https://www.alphavantage.co",
		apiKey:      apiKey,
	}
}

func (a *alphavantageAdapter) PairSymbol() string {
	return joinSymbol(currency.Alphavantage, a.pair, "")
}

type alphavantageResponse struct {
	Rate struct {
		ExchangeRate  string `json:"5. Exchange Rate"`
		LastRefreshed string `json:"6. Last Refreshed"`
	} `json:"Realtime Currency Exchange Rate"`
}

func (a *alphavantageAdapter) fetchRate(ctx context.Context, kind requestKind) (decimal.Decimal, int64, error) {
	q := url.Values{}
	q.Set("function", "CURRENCY_EXCHANGE_RATE")
	q.Set("from_currency", venueToken(currency.Alphavantage, a.pair.Base))
	q.Set("to_currency", venueToken(currency.Alphavantage, a.pair.Quote))
	q.Set("apikey", a.apiKey)

	var resp alphavantageResponse
	if err := a.client.GetJSON(ctx, kind, a.baseURL+"/query?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, 0, err
	}
	if resp.Rate.ExchangeRate == "" || resp.Rate.LastRefreshed == "" {
		return decimal.Zero, 0, fmt.Errorf("ticker response missing required fields: exchangeRate, lastRefreshed")
	}
	rate, err := decimal.NewFromString(resp.Rate.ExchangeRate)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("alphavantage exchange rate %q is not numeric", resp.Rate.ExchangeRate)
	}
	secs, err := parseAlphavantageTime(resp.Rate.LastRefreshed)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return rate, secs * 1000, nil
}

// parseAlphavantageTime parses a "Last Refreshed" value to unix seconds.
func parseAlphavantageTime(s string) (int64, error) {
	t, err := time.ParseInLocation(alphavantageTimeLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("alphavantage last-refreshed %q: %w", s, err)
	}
	return t.Unix(), nil
}

func (a *alphavantageAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	now := time.Now()
	if fxMarketsClosed(now) {
		return true, nil
	}
	_, ts, err := a.fetchRate(ctx, kindOrderbookStatus)
	if err != nil {
		return false, err
	}
	return fxRateLive(ts, now), nil
}

func (a *alphavantageAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	rate, ts, err := a.fetchRate(ctx, kindTicker)
	if err != nil {
		return Ticker{}, err
	}
	return fxTicker(a.exchange, a.PairSymbol(), rate, ts, time.Now())
}

// fxTicker assembles a ticker from a single FX rate: bid and ask bracket
// the rate at six decimal places and both volumes are 1 so FX sources
// weigh equally.
func fxTicker(ex currency.Exchange, symbol string, rate decimal.Decimal, tsMillis int64, now time.Time) (Ticker, error) {
	t := Ticker{
		Exchange:    ex,
		Symbol:      symbol,
		Bid:         rate.RoundFloor(6),
		Ask:         rate.RoundCeil(6),
		LastPrice:   rate,
		BaseVolume:  decimal.NewFromInt(1),
		QuoteVolume: decimal.NewFromInt(1),
		Timestamp:   tsMillis,
	}
	if err := verifyTicker(t, now); err != nil {
		return Ticker{}, err
	}
	return t, nil
}
