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

func newTestCoinbaseAdapter(t *testing.T, product, ticker string) *coinbaseAdapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/products/CGLD-USD", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, product)
	})
	mux.HandleFunc("/products/CGLD-USD/ticker", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, ticker)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := newCoinbaseAdapter(mustPair(t, currency.CELO, currency.USD), newTestClient(currency.Coinbase), zerolog.Nop())
	a.baseURL = srv.URL
	return a
}

func TestCoinbaseFetchTicker(t *testing.T) {
	a := newTestCoinbaseAdapter(t,
		`{"id":"CGLD-USD","status":"online","post_only":false,"cancel_only":false}`,
		`{"price":"0.46","bid":"0.45","ask":"0.47","volume":"12345.6","time":"2023-08-03T08:13:36.123Z"}`,
	)

	ticker, err := a.FetchTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CGLD-USD", ticker.Symbol)
	assert.True(t, ticker.LastPrice.Equal(decimal.RequireFromString("0.46")))
	assert.Equal(t, timeAt(t, "2023-08-03T08:13:36.123Z").UnixMilli(), ticker.Timestamp)
}

func TestCoinbaseNotLiveWhenPostOnly(t *testing.T) {
	a := newTestCoinbaseAdapter(t,
		`{"id":"CGLD-USD","status":"online","post_only":true,"cancel_only":false}`,
		`{}`,
	)

	live, err := a.IsOrderbookLive(context.Background())
	require.NoError(t, err)
	assert.False(t, live)

	_, err = a.FetchTicker(context.Background())
	assert.ErrorIs(t, err, ErrOrderbookDown)
}

func TestBinanceLivenessRequiresOrderTypes(t *testing.T) {
	liveInfo := `{"symbols":[{"symbol":"CELOUSDT","status":"TRADING","isSpotTradingAllowed":true,"orderTypes":["LIMIT","MARKET","STOP_LOSS"]}]}`
	limitedInfo := `{"symbols":[{"symbol":"CELOUSDT","status":"TRADING","isSpotTradingAllowed":true,"orderTypes":["LIMIT"]}]}`

	for _, tt := range []struct {
		name string
		info string
		want bool
	}{
		{"limit and market present", liveInfo, true},
		{"market order type missing", limitedInfo, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.info)
			})
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			a := newBinanceAdapter(mustPair(t, currency.CELO, currency.USDT), newTestClient(currency.Binance), zerolog.Nop())
			a.baseURL = srv.URL

			live, err := a.IsOrderbookLive(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, live)
		})
	}
}

func TestXigniteTimeParsing(t *testing.T) {
	secs, err := parseXigniteTime("08/03/2023", "8:13:36 AM")
	require.NoError(t, err)
	assert.Equal(t, int64(1691050416), secs)
}
