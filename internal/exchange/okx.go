package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// okxAdapter drives the OKX v5 public API. The same driver backs OKCOIN,
// which shares the v5 API surface on its own host.
type okxAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newOKXAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *okxAdapter {
	return &okxAdapter{
		baseAdapter: newBaseAdapter(currency.OKX, pair, client, log),
		baseURL:     "https://www.okx.com",
		symbol:      joinSymbol(currency.OKX, pair, "-"),
	}
}

func newOKCoinAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *okxAdapter {
	return &okxAdapter{
		baseAdapter: newBaseAdapter(currency.OKCoin, pair, client, log),
		baseURL:     "https://www.okcoin.com",
		symbol:      joinSymbol(currency.OKCoin, pair, "-"),
	}
}

func (a *okxAdapter) PairSymbol() string { return a.symbol }

type okxStatusResponse struct {
	Code string `json:"code"`
}

func (a *okxAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp okxStatusResponse
	url := a.baseURL + "/api/v5/system/status"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	return resp.Code == "0", nil
}

type okxTickerResponse struct {
	Code string `json:"code"`
	Data []struct {
		Last      string `json:"last"`
		AskPx     string `json:"askPx"`
		BidPx     string `json:"bidPx"`
		Vol24h    string `json:"vol24h"`
		VolCcy24h string `json:"volCcy24h"`
		TS        string `json:"ts"`
	} `json:"data"`
}

func (a *okxAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp okxTickerResponse
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	if resp.Code != "0" {
		return Ticker{}, fmt.Errorf("%s ticker endpoint returned code %s", a.exchange, resp.Code)
	}
	if len(resp.Data) != 1 {
		return Ticker{}, fmt.Errorf("unexpected number of instruments in ticker response: %d", len(resp.Data))
	}
	d := resp.Data[0]
	var ts int64
	if d.TS != "" {
		ms, err := strconv.ParseInt(d.TS, 10, 64)
		if err != nil {
			return Ticker{}, fmt.Errorf("%s ticker timestamp %q is not numeric", a.exchange, d.TS)
		}
		ts = ms
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         d.BidPx,
		ask:         d.AskPx,
		lastPrice:   d.Last,
		baseVolume:  d.Vol24h,
		quoteVolume: d.VolCcy24h,
		timestamp:   ts,
		hasTS:       true,
	})
}
