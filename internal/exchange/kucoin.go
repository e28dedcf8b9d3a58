package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// kucoinAdapter drives the KuCoin public API. KuCoin symbols are
// dash-separated.
type kucoinAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newKuCoinAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *kucoinAdapter {
	return &kucoinAdapter{
		baseAdapter: newBaseAdapter(currency.KuCoin, pair, client, log),
		baseURL:     "https://api.kucoin.com",
		symbol:      joinSymbol(currency.KuCoin, pair, "-"),
	}
}

func (a *kucoinAdapter) PairSymbol() string { return a.symbol }

type kucoinSymbolsResponse struct {
	Code string `json:"code"`
	Data []struct {
		Symbol        string `json:"symbol"`
		EnableTrading bool   `json:"enableTrading"`
	} `json:"data"`
}

func (a *kucoinAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp kucoinSymbolsResponse
	url := a.baseURL + "/api/v2/symbols"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	if resp.Code != "200000" {
		return false, fmt.Errorf("kucoin symbols endpoint returned code %s", resp.Code)
	}
	for _, s := range resp.Data {
		if s.Symbol == a.symbol {
			return s.EnableTrading, nil
		}
	}
	return false, nil
}

type kucoinStatsResponse struct {
	Code string `json:"code"`
	Data struct {
		Time     int64  `json:"time"`
		Buy      string `json:"buy"`
		Sell     string `json:"sell"`
		Last     string `json:"last"`
		Vol      string `json:"vol"`
		VolValue string `json:"volValue"`
	} `json:"data"`
}

func (a *kucoinAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp kucoinStatsResponse
	url := fmt.Sprintf("%s/api/v1/market/stats?symbol=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if resp.Code != "200000" {
		return Ticker{}, fmt.Errorf("kucoin stats endpoint returned code %s", resp.Code)
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         resp.Data.Buy,
		ask:         resp.Data.Sell,
		lastPrice:   resp.Data.Last,
		baseVolume:  resp.Data.Vol,
		quoteVolume: resp.Data.VolValue,
		timestamp:   resp.Data.Time,
		hasTS:       true,
	})
}
