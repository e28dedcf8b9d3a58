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

func newKrakenTestServer(t *testing.T, tickerBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/0/public/SystemStatus", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":[],"result":{"status":"online","timestamp":"2023-08-03T08:13:36Z"}}`)
	})
	mux.HandleFunc("/0/public/Ticker", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, tickerBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestKrakenAdapter(t *testing.T, srv *httptest.Server) *krakenAdapter {
	t.Helper()
	pair := mustPair(t, currency.CELO, currency.USD)
	a := newKrakenAdapter(pair, newTestClient(currency.Kraken), zerolog.Nop())
	a.baseURL = srv.URL
	return a
}

func TestKrakenFetchTicker(t *testing.T) {
	srv := newKrakenTestServer(t, `{
		"error": [],
		"result": {
			"CELOUSD": {
				"a": ["0.4700", "500", "500.000"],
				"b": ["0.4500", "200", "200.000"],
				"c": ["0.4600", "100.0"],
				"v": ["1000.0", "2345.6"]
			}
		}
	}`)
	a := newTestKrakenAdapter(t, srv)

	ticker, err := a.FetchTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currency.Kraken, ticker.Exchange)
	assert.True(t, ticker.Bid.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, ticker.Ask.Equal(decimal.RequireFromString("0.47")))
	assert.True(t, ticker.LastPrice.Equal(decimal.RequireFromString("0.46")))
	assert.True(t, ticker.BaseVolume.Equal(decimal.RequireFromString("2345.6")))
}

func TestKrakenFetchTickerMultiplePairs(t *testing.T) {
	srv := newKrakenTestServer(t, `{
		"error": [],
		"result": {
			"CELOUSD": {"a":["1"],"b":["1"],"c":["1"],"v":["1","1"]},
			"CELOEUR": {"a":["1"],"b":["1"],"c":["1"],"v":["1","1"]}
		}
	}`)
	a := newTestKrakenAdapter(t, srv)

	_, err := a.FetchTicker(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Unexpected number of pairs in ticker response: 2", err.Error())
}

func TestKrakenOrderbookDownWhenNotOnline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/0/public/SystemStatus", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":[],"result":{"status":"maintenance"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	a := newTestKrakenAdapter(t, srv)

	live, err := a.IsOrderbookLive(context.Background())
	require.NoError(t, err)
	assert.False(t, live)

	_, err = a.FetchTicker(context.Background())
	assert.ErrorIs(t, err, ErrOrderbookDown)
}
