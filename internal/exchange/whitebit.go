package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// whitebitAdapter drives the Whitebit public API. Whitebit markets are
// underscore-separated.
type whitebitAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newWhitebitAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *whitebitAdapter {
	return &whitebitAdapter{
		baseAdapter: newBaseAdapter(currency.Whitebit, pair, client, log),
		baseURL:     "https://whitebit.com",
		symbol:      joinSymbol(currency.Whitebit, pair, "_"),
	}
}

func (a *whitebitAdapter) PairSymbol() string { return a.symbol }

type whitebitMarket struct {
	Name          string `json:"name"`
	TradesEnabled bool   `json:"tradesEnabled"`
	Type          string `json:"type"`
}

func (a *whitebitAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var markets []whitebitMarket
	url := a.baseURL + "/api/v4/public/markets"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &markets); err != nil {
		return false, err
	}
	for _, m := range markets {
		if m.Name == a.symbol {
			return m.TradesEnabled && m.Type == "spot", nil
		}
	}
	return false, nil
}

type whitebitTicker struct {
	Success bool `json:"success"`
	Result  struct {
		Bid    string `json:"bid"`
		Ask    string `json:"ask"`
		Last   string `json:"last"`
		Volume string `json:"vol"`
		Deal   string `json:"deal"`
	} `json:"result"`
}

func (a *whitebitAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp whitebitTicker
	url := fmt.Sprintf("%s/api/v1/public/ticker?market=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if !resp.Success {
		return Ticker{}, fmt.Errorf("whitebit ticker endpoint reported failure for %s", a.symbol)
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         resp.Result.Bid,
		ask:         resp.Result.Ask,
		lastPrice:   resp.Result.Last,
		baseVolume:  resp.Result.Volume,
		quoteVolume: resp.Result.Deal,
	})
}
