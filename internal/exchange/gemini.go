package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// geminiAdapter drives the Gemini public API. Gemini symbols are the
// lowercase concatenation of both tokens.
type geminiAdapter struct {
	baseAdapter
	baseURL string
	symbol  string
}

func newGeminiAdapter(pair currency.Pair, client *Client, log zerolog.Logger) *geminiAdapter {
	return &geminiAdapter{
		baseAdapter: newBaseAdapter(currency.Gemini, pair, client, log),
		baseURL:     "https://api.gemini.com",
		symbol:      strings.ToLower(joinSymbol(currency.Gemini, pair, "")),
	}
}

func (a *geminiAdapter) PairSymbol() string { return a.symbol }

type geminiSymbolDetails struct {
	Status string `json:"status"`
}

func (a *geminiAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	var d geminiSymbolDetails
	url := fmt.Sprintf("%s/v1/symbols/details/%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindOrderbookStatus, url, &d); err != nil {
		return false, err
	}
	return d.Status == "open", nil
}

// geminiTicker carries the v1 pubticker payload. The volume object is
// keyed by the pair's token names plus a millisecond "timestamp" entry.
type geminiTicker struct {
	Bid    string                 `json:"bid"`
	Ask    string                 `json:"ask"`
	Last   string                 `json:"last"`
	Volume map[string]json.Number `json:"volume"`
}

func (a *geminiAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	var resp geminiTicker
	url := fmt.Sprintf("%s/v1/pubticker/%s", a.baseURL, a.symbol)
	if err := a.client.GetJSON(ctx, kindTicker, url, &resp); err != nil {
		return Ticker{}, err
	}

	baseVolume := resp.Volume[venueToken(currency.Gemini, a.pair.Base)].String()
	quoteVolume := resp.Volume[venueToken(currency.Gemini, a.pair.Quote)].String()
	var ts int64
	if raw, ok := resp.Volume["timestamp"]; ok {
		ms, err := raw.Int64()
		if err != nil {
			return Ticker{}, fmt.Errorf("gemini ticker timestamp %q is not numeric", raw)
		}
		ts = ms
	}
	return buildTicker(a.exchange, a.symbol, time.Now(), tickerFields{
		bid:         resp.Bid,
		ask:         resp.Ask,
		lastPrice:   resp.Last,
		baseVolume:  baseVolume,
		quoteVolume: quoteVolume,
		timestamp:   ts,
		hasTS:       true,
	})
}
