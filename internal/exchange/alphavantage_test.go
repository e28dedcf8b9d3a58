package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/celo-oracle/internal/currency"
)

const alphavantagePayload = `{
	"Realtime Currency Exchange Rate": {
		"1. From_Currency Code": "XOF",
		"3. To_Currency Code": "USD",
		"5. Exchange Rate": "0.00152950",
		"6. Last Refreshed": "2023-08-03 08:13:36",
		"7. Time Zone": "UTC"
	}
}`

func newTestAlphavantageAdapter(t *testing.T, body string) *alphavantageAdapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	pair := mustPair(t, currency.XOF, currency.USD)
	a := newAlphavantageAdapter(pair, newTestClient(currency.Alphavantage), "test-key", zerolog.Nop())
	a.baseURL = srv.URL
	return a
}

func TestParseAlphavantageTime(t *testing.T) {
	secs, err := parseAlphavantageTime("2023-08-03 08:13:36")
	require.NoError(t, err)
	assert.Equal(t, int64(1691050416), secs)
}

func TestAlphavantageFetchRate(t *testing.T) {
	a := newTestAlphavantageAdapter(t, alphavantagePayload)

	rate, ts, err := a.fetchRate(context.Background(), kindTicker)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0015295")), "got %s", rate)
	assert.Equal(t, int64(1691050416)*1000, ts)
}

func TestAlphavantageFXTickerDerivation(t *testing.T) {
	rate := decimal.RequireFromString("0.0015295")
	ticker, err := fxTicker(currency.Alphavantage, "XOFUSD", rate, 1691050416000, timeAt(t, "2023-08-03T09:00:00Z"))
	require.NoError(t, err)

	assert.True(t, ticker.LastPrice.Equal(decimal.RequireFromString("0.0015295")), "lastPrice %s", ticker.LastPrice)
	assert.True(t, ticker.Ask.Equal(decimal.RequireFromString("0.00153")), "ask %s", ticker.Ask)
	assert.True(t, ticker.Bid.Equal(decimal.RequireFromString("0.001529")), "bid %s", ticker.Bid)
	assert.True(t, ticker.BaseVolume.Equal(decimal.NewFromInt(1)))
	assert.True(t, ticker.QuoteVolume.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1691050416000), ticker.Timestamp)
}

func TestAlphavantageMissingFields(t *testing.T) {
	a := newTestAlphavantageAdapter(t, `{"Realtime Currency Exchange Rate": {}}`)

	_, _, err := a.fetchRate(context.Background(), kindTicker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}
