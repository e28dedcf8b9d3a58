package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/celo-oracle/internal/aggregator"
	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/reporter"
)

const testPriceSources = `[
	[{"exchange":"COINBASE","base":"CELO","quote":"USD"}],
	[{"exchange":"BINANCE","base":"CELO","quote":"USDT"},
	 {"exchange":"COINBASE","base":"USDT","quote":"USD","ignoreVolume":true}]
]`

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CURRENCY_PAIR", "CELOUSD")
	t.Setenv("REPORT_STRATEGY", "timer_based")
	t.Setenv("WALLET_TYPE", "PRIVATE_KEY")
	t.Setenv("PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("HTTP_RPC_PROVIDER_URL", "https://forno.celo.org")
	t.Setenv("WS_RPC_PROVIDER_URL", "wss://forno.celo.org/ws")
	t.Setenv("SORTED_ORACLES_ADDRESS", "0xefb84935239dacdecf7c5ba76d8de40b077b7b33")
	t.Setenv("TOKEN_ADDRESS", "0x765de816845861e75a25fca122bb6898b8b1282a")
	t.Setenv("PROMETHEUS_PORT", "9090")
	t.Setenv("PRICE_SOURCES", testPriceSources)
	t.Setenv("MINIMUM_PRICE_SOURCES", "2")
}

func TestFromEnvValid(t *testing.T) {
	setValidEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "CELOUSD", cfg.PairName)
	assert.Equal(t, currency.CELO, cfg.Pair.Base)
	assert.Equal(t, currency.USD, cfg.Pair.Quote)
	assert.Equal(t, reporter.TimerBased, cfg.ReportStrategy)
	assert.Equal(t, WalletPrivateKey, cfg.WalletType)
	assert.Equal(t, 9090, cfg.PrometheusPort)
	assert.Equal(t, aggregator.Midprices, cfg.AggregationMethod)
	assert.Equal(t, 2, cfg.MinimumPriceSources)
	assert.Len(t, cfg.PriceSources, 2)
	assert.Len(t, cfg.PriceSources[1], 2)
	assert.True(t, cfg.PriceSources[1][1].IgnoreVolume)
	assert.Equal(t, 5*time.Second, cfg.APIRequestTimeout)
}

func TestFromEnvReportTargetOverride(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REPORT_TARGET_OVERRIDE", "0x000000000000000000000000000000000000ce10")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.ReportTargetOverride)
	assert.Equal(t, *cfg.ReportTargetOverride, cfg.ReportTarget())
}

func TestFromEnvUnusedOracleAddresses(t *testing.T) {
	setValidEnv(t)
	t.Setenv("UNUSED_ORACLE_ADDRESSES",
		"0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Len(t, cfg.UnusedOracleAddresses, 2)
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"bad pair", "CURRENCY_PAIR", "CELOJPY", "CURRENCY_PAIR"},
		{"bad strategy", "REPORT_STRATEGY", "ALWAYS", "REPORT_STRATEGY"},
		{"bad wallet", "WALLET_TYPE", "PAPER", "WALLET_TYPE"},
		{"bad http url", "HTTP_RPC_PROVIDER_URL", "ftp://forno.celo.org", "HTTP_RPC_PROVIDER_URL"},
		{"bad ws url", "WS_RPC_PROVIDER_URL", "https://forno.celo.org", "WS_RPC_PROVIDER_URL"},
		{"port too large", "PROMETHEUS_PORT", "70000", "PROMETHEUS_PORT"},
		{"port not a number", "PROMETHEUS_PORT", "auto", "PROMETHEUS_PORT"},
		{"scaling rate at one", "AGGREGATION_SCALING_RATE", "1", "AGGREGATION_SCALING_RATE"},
		{"bad method", "AGGREGATION_METHOD", "VWAP", "AGGREGATION_METHOD"},
		{"bad address list", "UNUSED_ORACLE_ADDRESSES", "0x1234", "UNUSED_ORACLE_ADDRESSES"},
		{"bad override", "REPORT_TARGET_OVERRIDE", "not-an-address", "REPORT_TARGET_OVERRIDE"},
		{"bad sources json", "PRICE_SOURCES", "coinbase", "PRICE_SOURCES"},
		{"unknown source exchange", "PRICE_SOURCES", `[[{"exchange":"MTGOX","base":"CELO","quote":"USD"}]]`, "PRICE_SOURCES"},
		{"zero minimum sources", "MINIMUM_PRICE_SOURCES", "0", "MINIMUM_PRICE_SOURCES"},
		{"bad vault name", "AZURE_KEY_VAULT_NAME", "x!", "AZURE_KEY_VAULT_NAME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFromEnvBlockBasedRequiresWS(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REPORT_STRATEGY", "BLOCK_BASED")
	t.Setenv("WS_RPC_PROVIDER_URL", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WS_RPC_PROVIDER_URL")
}

func TestFromEnvScalingRateAtZeroIsValid(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AGGREGATION_SCALING_RATE", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.AggregationScalingRate.IsZero())
}

func TestFromEnvAzureHSMRequiresVaultName(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WALLET_TYPE", "AZURE_HSM")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_KEY_VAULT_NAME")

	t.Setenv("AZURE_KEY_VAULT_NAME", "prod-oracle-vault")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, WalletAzureHSM, cfg.WalletType)
}
