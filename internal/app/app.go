// Package app wires the oracle's engines together and owns their
// lifecycle: price source loops, certificate refresher, reporter and the
// operational HTTP server all run under one cancellation domain.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/celo-org/celo-oracle/internal/aggregator"
	"github.com/celo-org/celo-oracle/internal/certs"
	"github.com/celo-org/celo-oracle/internal/chain"
	"github.com/celo-org/celo-oracle/internal/config"
	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/exchange"
	"github.com/celo-org/celo-oracle/internal/metrics"
	"github.com/celo-org/celo-oracle/internal/pricesource"
	"github.com/celo-org/celo-oracle/internal/reporter"
	"github.com/celo-org/celo-oracle/internal/server"
)

// App is the assembled oracle process.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	certs    *certs.Manager
	sources  []*pricesource.Source
	agg      *aggregator.Aggregator
	reporter *reporter.Reporter
	server   *server.Server
}

// New assembles every engine from the validated configuration.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	certManager, err := certs.New(cfg.CertRefreshURL, cfg.CertRefreshInterval, m, log)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, certManager, m, log)
	if err != nil {
		return nil, err
	}

	aggSources := make([]aggregator.PriceSource, len(sources))
	for i, s := range sources {
		aggSources[i] = s
	}
	agg := aggregator.New(cfg.PairName, aggSources, aggregator.Config{
		Method:                    cfg.AggregationMethod,
		MaxPercentageBidAskSpread: cfg.MaxPercentageBidAskSpread,
		MaxPercentageDeviation:    cfg.MaxPercentageDeviation,
		MaxSourceWeightShare:      cfg.MaxSourceWeightShare,
		MinPriceSourceCount:       cfg.MinimumPriceSources,
		MinAggregatedVolume:       cfg.MinAggregatedVolume,
		MaxNoTradeDuration:        cfg.MaxNoTradeDuration,
		ScalingRate:               cfg.AggregationScalingRate,
	}, m, log)

	signer, err := buildSigner(cfg)
	if err != nil {
		return nil, err
	}
	chainClient, err := chain.Dial(ctx, cfg.HTTPRPCProviderURL, cfg.WSRPCProviderURL, cfg.ReportTarget(), cfg.TokenAddress, signer, log)
	if err != nil {
		return nil, err
	}

	breaker := reporter.NewCircuitBreaker(reporter.BreakerConfig{
		Enabled:                 cfg.CircuitBreakerEnabled,
		PriceChangeThresholdMin: cfg.CircuitBreakerThresholdMin,
		PriceChangeThresholdMax: cfg.CircuitBreakerThresholdMax,
		TimeMultiplier:          cfg.CircuitBreakerTimeMultiplier,
		TripDuration:            cfg.CircuitBreakerDuration,
	}, m, log)

	rep := reporter.New(reporter.Config{
		Pair:                               cfg.PairName,
		Strategy:                           cfg.ReportStrategy,
		ReportFrequency:                    cfg.ReportFrequency,
		ReportOffset:                       cfg.ReportOffset,
		ReportMinimum:                      cfg.ReportMinimum,
		RemoveExpiredFrequency:             cfg.RemoveExpiredFrequency,
		RemoveExpiredOffset:                cfg.RemoveExpiredOffset,
		MaxBlockTimestampAge:               cfg.MaxBlockTimestampAge,
		TargetMaxHeartbeatPeriod:           cfg.TargetMaxHeartbeatPeriod,
		MinReportPriceChangeThreshold:      cfg.MinReportPriceChangeThreshold,
		TransactionRetryLimit:              cfg.TransactionRetryLimit,
		TransactionRetryGasPriceMultiplier: cfg.TransactionRetryGasPriceMultiplier,
		GasPriceMultiplier:                 cfg.GasPriceMultiplier,
		ExcludedOracles:                    cfg.UnusedOracleAddresses,
		RemoveExpiredBatch:                 1,
	}, agg, chainClient, breaker, m, log)

	app := &App{
		cfg:      cfg,
		log:      log.With().Str("component", "app").Logger(),
		certs:    certManager,
		sources:  sources,
		agg:      agg,
		reporter: rep,
	}
	app.server = server.New(cfg.PrometheusPort, reg, app.healthy, breaker.Rearm, log)
	return app, nil
}

// buildSources constructs one price source per configured group, sharing
// the certificate manager across all adapters.
func buildSources(cfg *config.Config, certManager *certs.Manager, m *metrics.Metrics, log zerolog.Logger) ([]*pricesource.Source, error) {
	deps := exchange.Deps{
		Certs:   certManager,
		Metrics: m,
		Log:     log,
		ClientConfig: exchange.ClientConfig{
			Timeout:              cfg.APIRequestTimeout,
			MaxRequestsPerSecond: 2,
		},
		APIKeys: cfg.APIKeys,
	}

	sources := make([]*pricesource.Source, 0, len(cfg.PriceSources))
	for i, legCfgs := range cfg.PriceSources {
		legs := make([]pricesource.Leg, 0, len(legCfgs))
		for _, lc := range legCfgs {
			pair, err := currency.NewPair(lc.Base, lc.Quote)
			if err != nil {
				return nil, fmt.Errorf("price source %d: %w", i, err)
			}
			adapter, err := exchange.New(lc.Exchange, pair, deps)
			if err != nil {
				return nil, fmt.Errorf("price source %d: %w", i, err)
			}
			legs = append(legs, pricesource.Leg{
				Adapter:      adapter,
				Invert:       lc.ToInvert,
				IgnoreVolume: lc.IgnoreVolume,
			})
		}
		src, err := pricesource.New(i, legs, pricesource.Config{
			FetchFrequency:    cfg.FetchFrequency,
			AggregationWindow: cfg.AggregationWindowDuration,
		}, m, log)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// buildSigner resolves the configured wallet backend.
func buildSigner(cfg *config.Config) (chain.Signer, error) {
	switch cfg.WalletType {
	case config.WalletPrivateKey:
		return chain.NewPrivateKeySigner(cfg.PrivateKey)
	case config.WalletAzureHSM:
		return nil, fmt.Errorf("AZURE_HSM wallet requires the external HSM signer integration")
	default:
		return nil, fmt.Errorf("unknown wallet type %q", cfg.WalletType)
	}
}

// healthy reports whether enough sources are currently valid to aggregate.
func (a *App) healthy() bool {
	now := time.Now()
	valid := 0
	for _, s := range a.sources {
		if s.Valid(now) {
			valid++
		}
	}
	return valid >= a.cfg.MinimumPriceSources
}

// Run drives every engine until ctx is cancelled or one fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.certs.Run(ctx) })
	for _, src := range a.sources {
		src := src
		g.Go(func() error { return src.Run(ctx) })
	}
	g.Go(func() error { return a.reporter.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })

	a.log.Info().
		Str("pair", a.cfg.PairName).
		Int("sources", len(a.sources)).
		Str("strategy", string(a.cfg.ReportStrategy)).
		Msg("oracle started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
