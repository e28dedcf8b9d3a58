package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// bitmartAdapter drives the BitMart spot API. BitMart symbols are
// underscore-separated; EUROC trades there as EURC.
type bitmartAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBitMartAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *bitmartAdapter {
	return &bitmartAdapter{
		baseAdapter: newBaseAdapter(currency.BitMart, pair, client, log),
		baseURL:     "https://api-cloud.bitmart.com",
		symbol:      joinSymbol(currency.BitMart, pair, "_"),
	}
}

func (a *bitmartAdapter) PairSymbol() string { return a.symbol }

type bitmartSymbolsDetails struct {
	Code int `json:"code"`
	Data struct {
		Symbols []struct {
			Symbol      string `json:"symbol"`
			TradeStatus string `json:"trade_status"`
		} `json:"symbols"`
	} `json:"data"`
}

func (a *bitmartAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp bitmartSymbolsDetails
	url := a.baseURL + "/spot/v1/symbols/details"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	if resp.Code != 1000 {
		return false, fmt.Errorf("bitmart symbols endpoint returned code %d", resp.Code)
	}
	for _, s := range resp.Data.Symbols {
		if s.Symbol == a.symbol {
			return s.TradeStatus == "trading", nil
		}
	}
	return false, nil
}

type bitmartTicker struct {
	Code int `json:"code"`
	Data struct {
		Last        string `json:"last"`
		BidPx       string `json:"bid_px"`
		AskPx       string `json:"ask_px"`
		BaseVolume  string `json:"v_24h"`
		QuoteVolume string `json:"qv_24h"`
		TS          string `json:"ts"`
	} `json:"data"`
}

func (a *bitmartAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp bitmartTicker
	url := fmt.Sprintf("%s/spot/quotation/v3/ticker?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if resp.Code != 1000 {
		return Ticker{}, fmt.Errorf("bitmart ticker endpoint returned code %d", resp.Code)
	}
	var ts int64
	if resp.Data.TS != "" {
		ms, err := strconv.ParseInt(resp.Data.TS, 10, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("bitmart ticker timestamp %q is not numeric", resp.Data.TS)
		}
		ts = ms
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         resp.Data.BidPx,
		ask:         resp.Data.AskPx,
		lastPrice:   resp.Data.Last,
		baseVolume:  resp.Data.BaseVolume,
		quoteVolume: resp.Data.QuoteVolume,
		timestamp:   ts,
		hasTS:       true,
	})
}
