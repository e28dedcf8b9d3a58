package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/currency"
)

// xigniteAdapter drives the Xignite GlobalCurrencies real-time rate API.
type xigniteAdapter struct {
	baseAdapter
	baseURL string
	apiKey  string
}

func newXigniteAdapter(pair currency.Pair, client *Client, apiKey string, log zerolog.Logger) *xigniteAdapter {
	return &xigniteAdapter{
		baseAdapter: newBaseAdapter(currency.Xignite, pair, client, log),
		baseURL:     "https://globalcurrencies.xignite.com",
		apiKey:      apiKey,
	}
}

func (a *xigniteAdapter) PairSymbol() string {
	return joinSymbol(currency.Xignite, a.pair, "")
}

type xigniteRate struct {
	Outcome string      `json:"Outcome"`
	Mid     json.Number `json:"Mid"`
	Date    string      `json:"Date"`
	Time    string      `json:"Time"`
}

func (a *xigniteAdapter) fetchRate(ctx context.Context, kind requestKind) (decimal.Decimal, int64, error) {
	q := url.Values{}
	q.Set("Symbol", a.PairSymbol())
	q.Set("_token", a.apiKey)

	var resp xigniteRate
	endpoint := a.baseURL + "/xGlobalCurrencies.json/GetRealTimeRate?" + q.Encode()
	if err := a.client.GetJSON(ctx, kind, endpoint, &resp); err != nil {
		return decimal.Zero, 0, err
	}
	if resp.Outcome != "Success" {
		return decimal.Zero, 0, fmt.Errorf("xignite rate request outcome %q", resp.Outcome)
	}
	if resp.Mid.String() == "" || resp.Date == "" || resp.Time == "" {
		return decimal.Zero, 0, fmt.Errorf("ticker response missing required fields: mid, date, time")
	}
	rate, err := decimal.NewFromString(resp.Mid.String())
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("xignite mid rate %q is not numeric", resp.Mid)
	}
	ts, err := parseXigniteTime(resp.Date, resp.Time)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return rate, ts * 1000, nil
}

// parseXigniteTime combines the venue's Date ("01/02/2006") and Time
// ("3:04:05 PM") fields into unix seconds, interpreted as UTC.
func parseXigniteTime(date, clock string) (int64, error) {
	t, err := time.ParseInLocation("01/02/2006 3:04:05 PM", date+" "+clock, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("xignite timestamp %q %q: %w", date, clock, err)
	}
	return t.Unix(), nil
}

func (a *xigniteAdapter) IsOrderbookLive(ctx context.Context) (bool, error) {
	now := time.Now()
	if fxMarketsClosed(now) {
		return true, nil
	}
	_, ts, err := a.fetchRate(ctx, kindOrderbookStatus)
	if err != nil {
		return false, err
	}
	return fxRateLive(ts, now), nil
}

func (a *xigniteAdapter) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := a.ensureLive(ctx, a); err != nil {
		return Ticker{}, err
	}
	rate, ts, err := a.fetchRate(ctx, kindTicker)
	if err != nil {
		return Ticker{}, err
	}
	return fxTicker(a.exchange, a.PairSymbol(), rate, ts, time.Now())
}
