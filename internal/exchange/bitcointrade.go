package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// bitcointradeAdapter drives the Bitcointrade public API. Bitcointrade
// writes its pairs quote-first, so the venue symbol is the inverted pair.
type bitcointradeAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newBitcointradeAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *bitcointradeAdapter {
	return &bitcointradeAdapter{
		baseAdapter: newBaseAdapter(currency.Bitcointrade, pair, client, log),
		baseURL:     "https://api.bitcointrade.com.br/v3",
		symbol:      joinSymbol(currency.Bitcointrade, pair.Invert(), ""),
	}
}

func (a *bitcointradeAdapter) PairSymbol() string { return a.symbol }

type bitcointradePairs struct {
	Data []struct {
		Symbol  string `json:"symbol"`
		Enabled bool   `json:"enabled"`
	} `json:"data"`
}

func (a *bitcointradeAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var resp bitcointradePairs
	url := a.baseURL + "/public/pairs"
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &resp); err != nil {
		return false, err
	}
	for _, p := range resp.Data {
		if p.Symbol == a.symbol {
			return p.Enabled, nil
		}
	}
	return false, nil
}

type bitcointradeTicker struct {
	Data struct {
		Last   string `json:"last"`
		Buy    string `json:"buy"`
		Sell   string `json:"sell"`
		Volume string `json:"volume"`
		Date   string `json:"date"`
	} `json:"data"`
}

func (a *bitcointradeAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp bitcointradeTicker
	url := fmt.Sprintf("%s/public/%s/ticker", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}
	var ts int64
	if resp.Data.Date != "" {
		parsed, err := time.Parse(time.RFC3339, resp.Data.Date)
		if err != nil {
			return Ticker{}, fmt.Errorf("bitcointrade ticker date %q is not RFC3339", resp.Data.Date)
		}
		ts = parsed.UnixMilli()
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:        resp.Data.Buy,
		ask:        resp.Data.Sell,
		lastPrice:  resp.Data.Last,
		baseVolume: resp.Data.Volume,
		timestamp:  ts,
		hasTS:      true,
	})
}
