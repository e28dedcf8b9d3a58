package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// bitgetAdapter drives the Bitget v2 spot API.
type bitgetAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBitgetAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *bitgetAdapter {
	return &bitgetAdapter{
		baseAdapter: newBaseAdapter(currency.Bitget, pair, client, log),
		baseURL:     "https://api.bitget.com",
		symbol:      joinSymbol(currency.Bitget, pair, ""),
	}
}

func (a *bitgetAdapter) PairSymbol() string { return a.symbol }

type bitgetSymbolsResponse struct {
	Code string `json:"code"`
	Data []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"data"`
}

func (a *bitgetAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp bitgetSymbolsResponse
	url := fmt.Sprintf("%s/api/v2/spot/public/symbols?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	if resp.Code != "00000" {
		return false, fmt.Errorf("bitget symbols endpoint returned code %s", resp.Code)
	}
	for _, s := range resp.Data {
		if s.Symbol == a.symbol {
			return s.Status == "online", nil
		}
	}
	return false, nil
}

type bitgetTickerResponse struct {
	Code string `json:"code"`
	Data []struct {
		LastPr      string `json:"lastPr"`
		AskPr       string `json:"askPr"`
		BidPr       string `json:"bidPr"`
		BaseVolume  string `json:"baseVolume"`
		QuoteVolume string `json:"quoteVolume"`
		TS          string `json:"ts"`
	} `json:"data"`
}

func (a *bitgetAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp bitgetTickerResponse
	url := fmt.Sprintf("%s/api/v2/spot/market/tickers?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if resp.Code != "00000" {
		return Ticker{}, fmt.Errorf("bitget ticker endpoint returned code %s", resp.Code)
	}
	if len(resp.Data) != 1 {
		return Ticker{}, fmt.Errorf("unexpected number of tickers in response: %d", len(resp.Data))
	}
	d := resp.Data[0]
	var ts int64
	if d.TS != "" {
		ms, err := strconv.ParseInt(d.TS, 10, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("bitget ticker timestamp %q is not numeric", d.TS)
		}
		ts = ms
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         d.BidPr,
		ask:         d.AskPr,
		lastPrice:   d.LastPr,
		baseVolume:  d.BaseVolume,
		quoteVolume: d.QuoteVolume,
		timestamp:   ts,
		hasTS:       true,
	})
}
