package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// krakenAdapter drives the Kraken public REST API.
type krakenAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newKrakenAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *krakenAdapter {
	return &krakenAdapter{
		baseAdapter: newBaseAdapter(currency.Kraken, pair, client, log),
		baseURL:     "https://api.kraken.com",
		symbol:      joinSymbol(currency.Kraken, pair, ""),
	}
}

func (a *krakenAdapter) PairSymbol() string { return a.symbol }

type krakenSystemStatus struct {
	Error  []string `json:"error"`
	Result struct {
		Status string `json:"status"`
	} `json:"result"`
}

func (a *krakenAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp krakenSystemStatus
	url := a.baseURL + "/0/public/SystemStatus"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	if len(resp.Error) > 0 {
		return false, fmt.Errorf("kraken system status error: %v", resp.Error)
	}
	return resp.Result.Status == "online", nil
}

// krakenPairTicker is the per-pair payload of the Ticker endpoint. Array
// fields follow Kraken's positional convention: a/b are [price, whole lot
// volume, lot volume], c is [last price, lot volume], v is [today, 24h].
type krakenPairTicker struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Closed []string `json:"c"`
	Volume []string `json:"v"`
}

type krakenTickerResponse struct {
	Error  []string                    `json:"error"`
	Result map[string]krakenPairTicker `json:"result"`
}

func (a *krakenAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp krakenTickerResponse
	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if len(resp.Error) > 0 {
		return Ticker{}, fmt.Errorf("kraken ticker error: %v", resp.Error)
	}
	if len(resp.Result) != 1 {
		return Ticker{}, fmt.Errorf("Unexpected number of pairs in ticker response: %d", len(resp.Result))
	}

	var pt krakenPairTicker
	for _, v := range resp.Result {
		pt = v
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:        first(pt.Bid),
		ask:        first(pt.Ask),
		lastPrice:  first(pt.Closed),
		baseVolume: second(pt.Volume),
	})
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func second(ss []string) string {
	if len(ss) < 2 {
		return ""
	}
	return ss[1]
}
