package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// openExchangeRatesAdapter drives the OpenExchangeRates latest-rates API.
// The venue is considered always live.
type openExchangeRatesAdapter struct {
	baseAdapter
	baseURL string
	apiKey  string
}

func newOpenExchangeRatesAdapter(pair currency.Pair, client *Client, apiKey string, log zerolog.Logger) *openExchangeRatesAdapter {
	return &openExchangeRatesAdapter{
		baseAdapter: newBaseAdapter(currency.OpenExchangeRates, pair, client, log),
		baseURL:     "https://openexchangerates.org",
		apiKey:      apiKey,
	}
}

func (a *openExchangeRatesAdapter) PairSymbol() string {
	return joinSymbol(currency.OpenExchangeRates, a.pair, "")
}

func (a *openExchangeRatesAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	return true, nil
}

type openExchangeRatesResponse struct {
	Timestamp int64                  `json:"timestamp"`
	Rates     map[string]json.Number `json:"rates"`
}

func (a *openExchangeRatesAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	quote := venueToken(currency.OpenExchangeRates, a.pair.Quote)
	q := url.Values{}
	q.Set("app_id", a.apiKey)
	q.Set("base", venueToken(currency.OpenExchangeRates, a.pair.Base))
	q.Set("symbols", quote)

	var resp openExchangeRatesResponse
	if err := a.client.GetJSON(ctx, kindTicker, a.baseURL+"/api/latest.json?"+q.Encode(), &resp); err != nil {
		return Ticker{}, err
	}
	raw, ok := resp.Rates[quote]
	if !ok {
		return Ticker{}, fmt.Errorf("ticker response missing required fields: rates.%s", quote)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return Ticker{}, fmt.Errorf("openexchangerates rate %q is not numeric", raw)
	}
	return fxTicker(a.exchange, a.PairSymbol(), rate, resp.Timestamp*1000, time.Now())
}
