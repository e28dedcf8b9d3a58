package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// bitstampAdapter drives the Bitstamp public API. Bitstamp symbols are the
// lowercase concatenation of both tokens.
type bitstampAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBitstampAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *bitstampAdapter {
	return &bitstampAdapter{
		baseAdapter: newBaseAdapter(currency.Bitstamp, pair, client, log),
		baseURL:     "https://www.bitstamp.net",
		symbol:      strings.ToLower(joinSymbol(currency.Bitstamp, pair, "")),
	}
}

func (a *bitstampAdapter) PairSymbol() string { return a.symbol }

type bitstampPairInfo struct {
	URLSymbol              string `json:"url_symbol"`
	Trading                string `json:"trading"`
	InstantAndMarketOrders string `json:"instant_and_market_orders"`
}

func (a *bitstampAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var pairs []bitstampPairInfo
	url := a.baseURL + "/api/v2/trading-pairs-info/"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &pairs); err != nil {
		return false, err
	}
	for _, p := range pairs {
		if p.URLSymbol == a.symbol {
			return p.Trading == "Enabled" && p.InstantAndMarketOrders == "Enabled", nil
		}
	}
	return false, nil
}

type bitstampTicker struct {
	Last      string `json:"last"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Volume    string `json:"volume"`
	Timestamp string `json:"timestamp"`
}

func (a *bitstampAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp bitstampTicker
	url := fmt.Sprintf("%s/api/v2/ticker/%s/", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	var ts int64
	if resp.Timestamp != "" {
		secs, err := strconv.ParseInt(resp.Timestamp, 10, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("bitstamp ticker timestamp %q is not numeric", resp.Timestamp)
		}
		ts = secs * 1000
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:        resp.Bid,
		ask:        resp.Ask,
		lastPrice:  resp.Last,
		baseVolume: resp.Volume,
		timestamp:  ts,
		hasTS:      true,
	})
}
