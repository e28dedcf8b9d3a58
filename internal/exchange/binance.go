package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// binanceAdapter drives the Binance spot API. The same driver backs
// BINANCEUS, which exposes an identical API surface on its own host.
type binanceAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBinanceAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *binanceAdapter {
	return &binanceAdapter{
		baseAdapter: newBaseAdapter(currency.Binance, pair, client, log),
		baseURL:     "https://api.binance.com",
		symbol:      joinSymbol(currency.Binance, pair, ""),
	}
}

func newBinanceUSAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *binanceAdapter {
	return &binanceAdapter{
		baseAdapter: newBaseAdapter(currency.BinanceUS, pair, client, log),
		baseURL:     "https://api.binance.us",
		symbol:      joinSymbol(currency.BinanceUS, pair, ""),
	}
}

func (a *binanceAdapter) PairSymbol() string { return a.symbol }

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol               string   `json:"symbol"`
		Status               string   `json:"status"`
		IsSpotTradingAllowed bool     `json:"isSpotTradingAllowed"`
		OrderTypes           []string `json:"orderTypes"`
	} `json:"symbols"`
}

func (a *binanceAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var info binanceExchangeInfo
	url := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &info); err != nil {
		return false, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != a.symbol {
			continue
		}
		return s.Status == "TRADING" && s.IsSpotTradingAllowed && containsAll(s.OrderTypes, "LIMIT", "MARKET"), nil
	}
	return false, nil
}

func containsAll(haystack []string, needles ...string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type binanceTicker struct {
	BidPrice    string `json:"bidPrice"`
	AskPrice    string `json:"askPrice"`
	LastPrice   string `json:"lastPrice"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
	CloseTime   int64  `json:"closeTime"`
}

func (a *binanceAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp binanceTicker
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         resp.BidPrice,
		ask:         resp.AskPrice,
		lastPrice:   resp.LastPrice,
		baseVolume:  resp.Volume,
		quoteVolume: resp.QuoteVolume,
		timestamp:   resp.CloseTime,
		hasTS:       true,
	})
}
