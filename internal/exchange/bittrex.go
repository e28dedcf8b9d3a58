package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// bittrexAdapter drives the Bittrex v3 API. The ticker endpoint carries
// prices only, so volume comes from the market summary.
type bittrexAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBittrexAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *bittrexAdapter {
	return &bittrexAdapter{
		baseAdapter: newBaseAdapter(currency.Bittrex, pair, client, log),
		baseURL:     "https://api.bittrex.com/v3",
		symbol:      joinSymbol(currency.Bittrex, pair, "-"),
	}
}

func (a *bittrexAdapter) PairSymbol() string { return a.symbol }

type bittrexMarket struct {
	Status string `json:"status"`
}

func (a *bittrexAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var m bittrexMarket
	url := fmt.Sprintf("%s/markets/%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &m); err != nil {
		return false, err
	}
	return m.Status == "ONLINE", nil
}

type bittrexTicker struct {
	LastTradeRate string `json:"lastTradeRate"`
	BidRate       string `json:"bidRate"`
	AskRate       string `json:"askRate"`
}

type bittrexSummary struct {
	Volume      string    `json:"volume"`
	QuoteVolume string    `json:"quoteVolume"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (a *bittrexAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var tick bittrexTicker
	if err := a.client.GetJSON(ctx, kindTicker, fmt.Sprintf("%s/markets/%s/ticker", a.baseURL, a.symbol), &tick); err != nil {
		return Ticker{}, err
	}
	var sum bittrexSummary
	if err := a.client.GetJSON(ctx, kindTicker, fmt.Sprintf("%s/markets/%s/summary", a.baseURL, a.symbol), &sum); err != nil {
		return Ticker{}, err
	}
	var ts int64
	if !sum.UpdatedAt.IsZero() {
		ts = sum.UpdatedAt.UnixMilli()
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         tick.BidRate,
		ask:         tick.AskRate,
		lastPrice:   tick.LastTradeRate,
		baseVolume:  sum.Volume,
		quoteVolume: sum.QuoteVolume,
		timestamp:   ts,
		hasTS:       true,
	})
}
