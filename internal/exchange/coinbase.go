package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// coinbaseAdapter drives the Coinbase Exchange public API.
type coinbaseAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newCoinbaseAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *coinbaseAdapter {
	return &coinbaseAdapter{
		baseAdapter: newBaseAdapter(currency.Coinbase, pair, client, log),
		baseURL:     "https://api.exchange.coinbase.com",
		symbol:      joinSymbol(currency.Coinbase, pair, "-"),
	}
}

func (a *coinbaseAdapter) PairSymbol() string { return a.symbol }

type coinbaseProduct struct {
	Status     string `json:"status"`
	PostOnly   bool   `json:"post_only"`
	CancelOnly bool   `json:"cancel_only"`
}

func (a *coinbaseAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var p coinbaseProduct
	url := fmt.Sprintf("%s/products/%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &p); err != nil {
		return false, err
	}
	return p.Status == "online" && !p.PostOnly && !p.CancelOnly, nil
}

type coinbaseTicker struct {
	Price  string    `json:"price"`
	Bid    string    `json:"bid"`
	Ask    string    `json:"ask"`
	Volume string    `json:"volume"`
	Time   time.Time `json:"time"`
}

func (a *coinbaseAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp coinbaseTicker
	url := fmt.Sprintf("%s/products/%s/ticker", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	var ts int64
	if !resp.Time.IsZero() {
		ts = resp.Time.UnixMilli()
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:        resp.Bid,
		ask:        resp.Ask,
		lastPrice:  resp.Price,
		baseVolume: resp.Volume,
		timestamp:  ts,
		hasTS:      true,
	})
}
