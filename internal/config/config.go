// Package config parses and strictly validates the oracle's environment
// configuration. Invalid values fail startup with a diagnostic naming the
// variable and the violated constraint; unknown variables are ignored.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/aggregator"
	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/reporter"
)

// WalletType selects the transaction signing backend.
type WalletType string

const (
	WalletPrivateKey WalletType = "PRIVATE_KEY"
	WalletAzureHSM   WalletType = "AZURE_HSM"
)

var azureVaultNamePattern = regexp.MustCompile(`^[A-Za-z0-9-]{3,24}$`)

// SourceLeg is one leg of a configured price source.
type SourceLeg struct {
	Exchange     currency.Exchange `json:"exchange"`
	Base         currency.Currency `json:"base"`
	Quote        currency.Currency `json:"quote"`
	ToInvert     bool              `json:"toInvert"`
	IgnoreVolume bool              `json:"ignoreVolume"`
}

// Config is the fully validated oracle configuration.
type Config struct {
	PairName string
	Pair     currency.Pair

	ReportStrategy    reporter.Strategy
	WalletType        WalletType
	PrivateKey        string
	AzureKeyVaultName string

	HTTPRPCProviderURL string
	WSRPCProviderURL   string

	SortedOraclesAddress  common.Address
	TokenAddress          common.Address
	ReportTargetOverride  *common.Address
	UnusedOracleAddresses []common.Address

	PrometheusPort int

	AggregationMethod      aggregator.Method
	AggregationScalingRate decimal.Decimal

	PriceSources        [][]SourceLeg
	MinimumPriceSources int

	APIRequestTimeout time.Duration
	FetchFrequency    time.Duration

	AggregationWindowDuration time.Duration
	MaxNoTradeDuration        time.Duration

	MaxPercentageBidAskSpread decimal.Decimal
	MaxPercentageDeviation    decimal.Decimal
	MaxSourceWeightShare      decimal.Decimal
	MinAggregatedVolume       decimal.Decimal

	ReportFrequency        time.Duration
	ReportOffset           time.Duration
	ReportMinimum          time.Duration
	RemoveExpiredFrequency time.Duration
	RemoveExpiredOffset    time.Duration

	MaxBlockTimestampAge          time.Duration
	TargetMaxHeartbeatPeriod      time.Duration
	MinReportPriceChangeThreshold decimal.Decimal

	CircuitBreakerEnabled              bool
	CircuitBreakerThresholdMin         decimal.Decimal
	CircuitBreakerThresholdMax         decimal.Decimal
	CircuitBreakerTimeMultiplier       decimal.Decimal
	CircuitBreakerDuration             time.Duration
	TransactionRetryLimit              int
	TransactionRetryGasPriceMultiplier decimal.Decimal
	GasPriceMultiplier                 decimal.Decimal

	CertRefreshURL      string
	CertRefreshInterval time.Duration

	APIKeys map[currency.Exchange]string
}

// FromEnv reads and validates configuration from the process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	var err error

	pairName := os.Getenv("CURRENCY_PAIR")
	if cfg.Pair, err = currency.ParseReportablePair(pairName); err != nil {
		return nil, fmt.Errorf("CURRENCY_PAIR: %w", err)
	}
	cfg.PairName = pairName

	if cfg.ReportStrategy, err = reporter.ParseStrategy(upperOr("REPORT_STRATEGY", string(reporter.TimerBased))); err != nil {
		return nil, fmt.Errorf("REPORT_STRATEGY: %w", err)
	}

	switch wt := WalletType(upperOr("WALLET_TYPE", string(WalletPrivateKey))); wt {
	case WalletPrivateKey, WalletAzureHSM:
		cfg.WalletType = wt
	default:
		return nil, fmt.Errorf("WALLET_TYPE: unknown wallet type %q (want PRIVATE_KEY or AZURE_HSM)", wt)
	}
	if cfg.WalletType == WalletPrivateKey {
		cfg.PrivateKey = os.Getenv("PRIVATE_KEY")
		if cfg.PrivateKey == "" {
			return nil, fmt.Errorf("PRIVATE_KEY: required for WALLET_TYPE=PRIVATE_KEY")
		}
	}
	if cfg.AzureKeyVaultName = os.Getenv("AZURE_KEY_VAULT_NAME"); cfg.AzureKeyVaultName != "" {
		if !azureVaultNamePattern.MatchString(cfg.AzureKeyVaultName) {
			return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME: %q does not match ^[A-Za-z0-9-]{3,24}$", cfg.AzureKeyVaultName)
		}
	} else if cfg.WalletType == WalletAzureHSM {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME: required for WALLET_TYPE=AZURE_HSM")
	}

	cfg.HTTPRPCProviderURL = os.Getenv("HTTP_RPC_PROVIDER_URL")
	if !strings.HasPrefix(cfg.HTTPRPCProviderURL, "http://") && !strings.HasPrefix(cfg.HTTPRPCProviderURL, "https://") {
		return nil, fmt.Errorf("HTTP_RPC_PROVIDER_URL: %q must begin with http:// or https://", cfg.HTTPRPCProviderURL)
	}
	cfg.WSRPCProviderURL = os.Getenv("WS_RPC_PROVIDER_URL")
	if cfg.WSRPCProviderURL != "" &&
		!strings.HasPrefix(cfg.WSRPCProviderURL, "ws://") && !strings.HasPrefix(cfg.WSRPCProviderURL, "wss://") {
		return nil, fmt.Errorf("WS_RPC_PROVIDER_URL: %q must begin with ws:// or wss://", cfg.WSRPCProviderURL)
	}
	if cfg.ReportStrategy == reporter.BlockBased && cfg.WSRPCProviderURL == "" {
		return nil, fmt.Errorf("WS_RPC_PROVIDER_URL: required for REPORT_STRATEGY=BLOCK_BASED")
	}

	if cfg.SortedOraclesAddress, err = parseAddress("SORTED_ORACLES_ADDRESS", os.Getenv("SORTED_ORACLES_ADDRESS")); err != nil {
		return nil, err
	}
	if cfg.TokenAddress, err = parseAddress("TOKEN_ADDRESS", os.Getenv("TOKEN_ADDRESS")); err != nil {
		return nil, err
	}
	if raw := os.Getenv("REPORT_TARGET_OVERRIDE"); raw != "" {
		addr, err := parseAddress("REPORT_TARGET_OVERRIDE", raw)
		if err != nil {
			return nil, err
		}
		cfg.ReportTargetOverride = &addr
	}
	if raw := os.Getenv("UNUSED_ORACLE_ADDRESSES"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			addr, err := parseAddress("UNUSED_ORACLE_ADDRESSES", strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			cfg.UnusedOracleAddresses = append(cfg.UnusedOracleAddresses, addr)
		}
	}

	if cfg.PrometheusPort, err = intInRange("PROMETHEUS_PORT", "9090", 1, 65535); err != nil {
		return nil, err
	}

	if cfg.AggregationMethod, err = aggregator.ParseMethod(upperOr("AGGREGATION_METHOD", string(aggregator.Midprices))); err != nil {
		return nil, fmt.Errorf("AGGREGATION_METHOD: %w", err)
	}
	if cfg.AggregationScalingRate, err = decimalInRange("AGGREGATION_SCALING_RATE", "0", decimal.Zero, decimal.NewFromInt(1), true, false); err != nil {
		return nil, err
	}

	if cfg.PriceSources, err = parsePriceSources(os.Getenv("PRICE_SOURCES")); err != nil {
		return nil, err
	}
	if cfg.MinimumPriceSources, err = intInRange("MINIMUM_PRICE_SOURCES", "1", 1, 1<<30); err != nil {
		return nil, err
	}

	if cfg.APIRequestTimeout, err = durationMs("API_REQUEST_TIMEOUT_MS", "5000"); err != nil {
		return nil, err
	}
	if cfg.FetchFrequency, err = durationMs("FETCH_FREQUENCY_MS", "30000"); err != nil {
		return nil, err
	}
	if cfg.AggregationWindowDuration, err = durationMs("AGGREGATION_WINDOW_DURATION_MS", "300000"); err != nil {
		return nil, err
	}
	if cfg.MaxNoTradeDuration, err = durationMs("MAX_NO_TRADE_DURATION_MS", "120000"); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	if cfg.MaxPercentageBidAskSpread, err = decimalInRange("MAX_PERCENTAGE_BID_ASK_SPREAD", "0.1", decimal.Zero, one, true, true); err != nil {
		return nil, err
	}
	if cfg.MaxPercentageDeviation, err = decimalInRange("MAX_PERCENTAGE_DEVIATION", "0.2", decimal.Zero, one, true, true); err != nil {
		return nil, err
	}
	if cfg.MaxSourceWeightShare, err = decimalInRange("MAX_SOURCE_WEIGHT_SHARE", "0.99", decimal.Zero, one, false, true); err != nil {
		return nil, err
	}
	if cfg.MinAggregatedVolume, err = decimalInRange("MIN_AGGREGATED_VOLUME", "0", decimal.Zero, decimal.New(1, 18), true, true); err != nil {
		return nil, err
	}

	if cfg.ReportFrequency, err = durationMs("REPORT_FREQUENCY_MS", "300000"); err != nil {
		return nil, err
	}
	if cfg.ReportOffset, err = durationMs("REPORT_OFFSET_MS", "0"); err != nil {
		return nil, err
	}
	if cfg.ReportMinimum, err = durationMs("REPORT_MINIMUM_MS", "0"); err != nil {
		return nil, err
	}
	if cfg.RemoveExpiredFrequency, err = durationMs("REMOVE_EXPIRED_FREQUENCY_MS", "3600000"); err != nil {
		return nil, err
	}
	if cfg.RemoveExpiredOffset, err = durationMs("REMOVE_EXPIRED_OFFSET_MS", "0"); err != nil {
		return nil, err
	}

	if cfg.MaxBlockTimestampAge, err = durationMs("MAX_BLOCK_TIMESTAMP_AGE_MS", "30000"); err != nil {
		return nil, err
	}
	if cfg.TargetMaxHeartbeatPeriod, err = durationMs("TARGET_MAX_HEARTBEAT_PERIOD_MS", "300000"); err != nil {
		return nil, err
	}
	if cfg.MinReportPriceChangeThreshold, err = decimalInRange("MIN_REPORT_PRICE_CHANGE_THRESHOLD", "0.005", decimal.Zero, one, true, true); err != nil {
		return nil, err
	}

	if cfg.CircuitBreakerEnabled, err = boolOr("CIRCUIT_BREAKER_ENABLED", "true"); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerThresholdMin, err = decimalInRange("CIRCUIT_BREAKER_PRICE_CHANGE_THRESHOLD_MIN", "0.1", decimal.Zero, one, true, true); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerThresholdMax, err = decimalInRange("CIRCUIT_BREAKER_PRICE_CHANGE_THRESHOLD_MAX", "0.25", decimal.Zero, one, true, true); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerThresholdMax.LessThan(cfg.CircuitBreakerThresholdMin) {
		return nil, fmt.Errorf("CIRCUIT_BREAKER_PRICE_CHANGE_THRESHOLD_MAX: must be >= CIRCUIT_BREAKER_PRICE_CHANGE_THRESHOLD_MIN")
	}
	if cfg.CircuitBreakerTimeMultiplier, err = decimalInRange("CIRCUIT_BREAKER_PRICE_CHANGE_THRESHOLD_TIME_MULTIPLIER", "7200", decimal.Zero, decimal.New(1, 9), true, true); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerDuration, err = durationMs("CIRCUIT_BREAKER_DURATION_MS", "1200000"); err != nil {
		return nil, err
	}
	if cfg.TransactionRetryLimit, err = intInRange("TRANSACTION_RETRY_LIMIT", "3", 0, 100); err != nil {
		return nil, err
	}
	if cfg.TransactionRetryGasPriceMultiplier, err = decimalInRange("TRANSACTION_RETRY_GAS_PRICE_MULTIPLIER", "0.1", decimal.Zero, decimal.NewFromInt(10), true, true); err != nil {
		return nil, err
	}
	if cfg.GasPriceMultiplier, err = decimalInRange("GAS_PRICE_MULTIPLIER", "5", one, decimal.NewFromInt(100), true, true); err != nil {
		return nil, err
	}

	cfg.CertRefreshURL = os.Getenv("CERT_FINGERPRINT_URL")
	if cfg.CertRefreshInterval, err = durationMs("CERT_REFRESH_INTERVAL_MS", "3600000"); err != nil {
		return nil, err
	}

	cfg.APIKeys = map[currency.Exchange]string{
		currency.Alphavantage:      os.Getenv("ALPHAVANTAGE_API_KEY"),
		currency.Xignite:           os.Getenv("XIGNITE_API_KEY"),
		currency.OpenExchangeRates: os.Getenv("OPENEXCHANGERATES_APP_ID"),
	}

	return &cfg, nil
}

// ReportTarget resolves the contract address reports are sent to.
func (c *Config) ReportTarget() common.Address {
	if c.ReportTargetOverride != nil {
		return *c.ReportTargetOverride
	}
	return c.SortedOraclesAddress
}

// parsePriceSources decodes the PRICE_SOURCES document: a JSON list of
// source groups, each an ordered list of leg specs.
func parsePriceSources(raw string) ([][]SourceLeg, error) {
	if raw == "" {
		return nil, fmt.Errorf("PRICE_SOURCES: required")
	}
	var sources [][]SourceLeg
	if err := json.Unmarshal([]byte(raw), &sources); err != nil {
		return nil, fmt.Errorf("PRICE_SOURCES: invalid JSON: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("PRICE_SOURCES: no sources configured")
	}
	for i, legs := range sources {
		if len(legs) == 0 {
			return nil, fmt.Errorf("PRICE_SOURCES: source %d has no legs", i)
		}
		for j, leg := range legs {
			if _, err := currency.ParseExchange(string(leg.Exchange)); err != nil {
				return nil, fmt.Errorf("PRICE_SOURCES: source %d leg %d: %w", i, j, err)
			}
			if _, err := currency.ParseCurrency(string(leg.Base)); err != nil {
				return nil, fmt.Errorf("PRICE_SOURCES: source %d leg %d: %w", i, j, err)
			}
			if _, err := currency.ParseCurrency(string(leg.Quote)); err != nil {
				return nil, fmt.Errorf("PRICE_SOURCES: source %d leg %d: %w", i, j, err)
			}
			if leg.Base == leg.Quote {
				return nil, fmt.Errorf("PRICE_SOURCES: source %d leg %d: degenerate pair %s/%s", i, j, leg.Base, leg.Quote)
			}
		}
	}
	return sources, nil
}

func parseAddress(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: %q is not a 20-byte hex address", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func upperOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return strings.ToUpper(v)
	}
	return fallback
}

func stringOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func boolOr(name, fallback string) (bool, error) {
	raw := stringOr(name, fallback)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, raw)
	}
	return b, nil
}

func intInRange(name, fallback string, min, max int) (int, error) {
	raw := stringOr(name, fallback)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, raw)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: %d is outside [%d, %d]", name, n, min, max)
	}
	return n, nil
}

func durationMs(name, fallback string) (time.Duration, error) {
	raw := stringOr(name, fallback)
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer millisecond count", name, raw)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s: must be non-negative", name)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// decimalInRange parses a decimal and checks it against [min, max], with
// each bound inclusive or exclusive as flagged.
func decimalInRange(name, fallback string, min, max decimal.Decimal, minInclusive, maxInclusive bool) (decimal.Decimal, error) {
	raw := stringOr(name, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a decimal", name, raw)
	}
	low := d.GreaterThan(min) || (minInclusive && d.Equal(min))
	high := d.LessThan(max) || (maxInclusive && d.Equal(max))
	if !low || !high {
		lb, rb := "(", ")"
		if minInclusive {
			lb = "["
		}
		if maxInclusive {
			rb = "]"
		}
		return decimal.Zero, fmt.Errorf("%s: %s is outside %s%s, %s%s", name, d, lb, min, max, rb)
	}
	return d, nil
}
