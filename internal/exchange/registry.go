package exchange

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

// Deps carries the collaborators every adapter needs.
type Deps struct {
	Certs        CertSource
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
	ClientConfig ClientConfig
	// APIKeys holds credentials for the venues that require one
	// (Alphavantage, Xignite, OpenExchangeRates).
	APIKeys map[currency.Exchange]string
}

// New builds the adapter for a venue and pair.
func New(ex currency.Exchange, pair currency.Pair, deps Deps) (Adapter, error) {
	client := NewClient(ex, deps.ClientConfig, deps.Certs, deps.Metrics, deps.Log)
	switch ex {
	case currency.Coinbase:
		return newCoinbaseAdapter(pair, client, deps.Log), nil
	case currency.Binance:
		return newBinanceAdapter(pair, client, deps.Log), nil
	case currency.BinanceUS:
		return newBinanceUSAdapter(pair, client, deps.Log), nil
	case currency.Bittrex:
		return newBittrexAdapter(pair, client, deps.Log), nil
	case currency.Bitstamp:
		return newBitstampAdapter(pair, client, deps.Log), nil
	case currency.KuCoin:
		return newKuCoinAdapter(pair, client, deps.Log), nil
	case currency.Kraken:
		return newKrakenAdapter(pair, client, deps.Log), nil
	case currency.Gemini:
		return newGeminiAdapter(pair, client, deps.Log), nil
	case currency.OKX:
		return newOKXAdapter(pair, client, deps.Log), nil
	case currency.OKCoin:
		return newOKCoinAdapter(pair, client, deps.Log), nil
	case currency.BitMart:
		return newBitMartAdapter(pair, client, deps.Log), nil
	case currency.Bitget:
		return newBitgetAdapter(pair, client, deps.Log), nil
	case currency.Whitebit:
		return newWhitebitAdapter(pair, client, deps.Log), nil
	case currency.Bitcointrade:
		return newBitcointradeAdapter(pair, client, deps.Log), nil
	case currency.Alphavantage:
		return newAlphavantageAdapter(pair, client, deps.APIKeys[ex], deps.Log), nil
	case currency.Xignite:
		return newXigniteAdapter(pair, client, deps.APIKeys[ex], deps.Log), nil
	case currency.OpenExchangeRates:
		return newOpenExchangeRatesAdapter(pair, client, deps.APIKeys[ex], deps.Log), nil
	default:
		return nil, fmt.Errorf("no adapter for exchange %s", ex)
	}
}
