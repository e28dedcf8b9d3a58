package reporter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/aggregator"
	"github.com/celo-org/celo-oracle/internal/chain"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

// Strategy selects how report ticks are generated.
type Strategy string

const (
	// TimerBased fires on a wall-clock cadence aligned to an offset.
	TimerBased Strategy = "TIMER_BASED"
	// BlockBased fires on new chain blocks, gated on heartbeat and price
	// movement.
	BlockBased Strategy = "BLOCK_BASED"
)

// ParseStrategy resolves a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case TimerBased, BlockBased:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown report strategy %q (want TIMER_BASED or BLOCK_BASED)", s)
}

// Config tunes the reporter.
type Config struct {
	Pair     string
	Strategy Strategy

	// Timer-based strategy.
	ReportFrequency        time.Duration
	ReportOffset           time.Duration
	ReportMinimum          time.Duration
	RemoveExpiredFrequency time.Duration
	RemoveExpiredOffset    time.Duration

	// Block-based strategy.
	MaxBlockTimestampAge          time.Duration
	TargetMaxHeartbeatPeriod      time.Duration
	MinReportPriceChangeThreshold decimal.Decimal

	// Submission retry policy.
	TransactionRetryLimit              int
	TransactionRetryGasPriceMultiplier decimal.Decimal
	// GasPriceMultiplier caps the bumped gas price at base * multiplier.
	GasPriceMultiplier decimal.Decimal

	// RetryBackoffBase is the base of the exponential backoff between
	// submission attempts. Defaults to one second.
	RetryBackoffBase time.Duration

	// ExcludedOracles are decommissioned oracle addresses whose on-chain
	// elements are ignored when computing insertion neighbors.
	ExcludedOracles []common.Address

	// RemoveExpiredBatch is how many expired reports one removal clears.
	RemoveExpiredBatch uint64
}

// ErrSubmissionFailed wraps the last error after retry exhaustion.
var ErrSubmissionFailed = errors.New("report submission failed")

// Reporter observes the aggregator and submits prices on schedule. It
// never mutates aggregator state.
type Reporter struct {
	cfg     Config
	agg     *aggregator.Aggregator
	chain   chain.Client
	breaker *CircuitBreaker
	metrics *metrics.Metrics
	log     zerolog.Logger
	rng     *rand.Rand

	lastReported   decimal.Decimal
	lastReportTime time.Time
}

// New builds a reporter.
func New(cfg Config, agg *aggregator.Aggregator, cl chain.Client, breaker *CircuitBreaker, m *metrics.Metrics, log zerolog.Logger) *Reporter {
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}
	return &Reporter{
		cfg:     cfg,
		agg:     agg,
		chain:   cl,
		breaker: breaker,
		metrics: m,
		log:     log.With().Str("component", "reporter").Str("pair", cfg.Pair).Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Breaker exposes the circuit breaker for the operator re-arm endpoint.
func (r *Reporter) Breaker() *CircuitBreaker { return r.breaker }

// Run drives the configured strategy until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	switch r.cfg.Strategy {
	case BlockBased:
		return r.runBlockBased(ctx)
	default:
		return r.runTimerBased(ctx)
	}
}

// runTimerBased fires reports and expired-report removals on their
// aligned cadences.
func (r *Reporter) runTimerBased(ctx context.Context) error {
	reportTimer := time.NewTimer(r.delayTo(r.cfg.ReportFrequency, r.cfg.ReportOffset, r.cfg.ReportMinimum))
	defer reportTimer.Stop()
	removeTimer := time.NewTimer(r.delayTo(r.cfg.RemoveExpiredFrequency, r.cfg.RemoveExpiredOffset, 0))
	defer removeTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reportTimer.C:
			r.reportOnce(ctx)
			reportTimer.Reset(r.delayTo(r.cfg.ReportFrequency, r.cfg.ReportOffset, r.cfg.ReportMinimum))
		case <-removeTimer.C:
			r.removeExpiredOnce(ctx)
			removeTimer.Reset(r.delayTo(r.cfg.RemoveExpiredFrequency, r.cfg.RemoveExpiredOffset, 0))
		}
	}
}

func (r *Reporter) delayTo(freq, offset, minimum time.Duration) time.Duration {
	if freq <= 0 {
		freq = time.Hour
	}
	ms := MsToNextAction(time.Now().UnixMilli(), freq.Milliseconds(), offset.Milliseconds(), minimum.Milliseconds())
	return time.Duration(ms) * time.Millisecond
}

// runBlockBased subscribes to new heads and fires at most one report per
// block, gated on block freshness plus heartbeat or price movement.
func (r *Reporter) runBlockBased(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := r.chain.SubscribeNewHeads(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribing to new heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("head subscription failed: %w", err)
		case head := <-heads:
			r.onBlock(ctx, head)
		}
	}
}

func (r *Reporter) onBlock(ctx context.Context, head *types.Header) {
	now := time.Now()
	blockTime := time.Unix(int64(head.Time), 0)
	if now.Sub(blockTime) > r.cfg.MaxBlockTimestampAge {
		r.log.Debug().Uint64("block", head.Number.Uint64()).Time("block_time", blockTime).Msg("skipping stale block")
		return
	}

	price, err := r.agg.Aggregate(now)
	if err != nil {
		r.metrics.ReportAttempts.WithLabelValues(r.cfg.Pair, "aggregation_failed").Inc()
		r.log.Warn().Err(err).Msg("aggregation failed, no report this block")
		return
	}

	heartbeatDue := r.lastReportTime.IsZero() || now.Sub(r.lastReportTime) > r.cfg.TargetMaxHeartbeatPeriod
	priceMoved := false
	if !r.lastReported.IsZero() {
		delta := price.Value.Sub(r.lastReported).Abs().Div(r.lastReported)
		priceMoved = delta.GreaterThanOrEqual(r.cfg.MinReportPriceChangeThreshold)
	}
	if !heartbeatDue && !priceMoved {
		return
	}
	r.submit(ctx, now, price)
}

// reportOnce is one timer-strategy tick: aggregate, gate, submit.
func (r *Reporter) reportOnce(ctx context.Context) {
	now := time.Now()
	price, err := r.agg.Aggregate(now)
	if err != nil {
		r.metrics.ReportAttempts.WithLabelValues(r.cfg.Pair, "aggregation_failed").Inc()
		r.log.Warn().Err(err).Msg("aggregation failed, no report this tick")
		return
	}
	r.submit(ctx, now, price)
}

// submit runs the circuit breaker and the retrying transmission.
func (r *Reporter) submit(ctx context.Context, now time.Time, price aggregator.AggregatedPrice) {
	if err := r.breaker.Evaluate(now, r.lastReported, price.Value); err != nil {
		r.metrics.ReportAttempts.WithLabelValues(r.cfg.Pair, "breaker_suppressed").Inc()
		r.log.Warn().Err(err).Str("price", price.Value.String()).Msg("report suppressed by circuit breaker")
		return
	}

	start := time.Now()
	if err := r.transmit(ctx, price.Value); err != nil {
		r.metrics.ReportAttempts.WithLabelValues(r.cfg.Pair, "tx_fail").Inc()
		r.log.Error().Err(err).Str("price", price.Value.String()).Msg("report submission failed")
		return
	}
	r.metrics.ReportDuration.WithLabelValues(r.cfg.Pair).Observe(time.Since(start).Seconds())
	r.metrics.ReportAttempts.WithLabelValues(r.cfg.Pair, "success").Inc()
	r.metrics.LastReportedPrice.WithLabelValues(r.cfg.Pair).Set(price.Value.InexactFloat64())

	r.lastReported = price.Value
	r.lastReportTime = now
	r.log.Info().
		Str("price", price.Value.String()).
		Int("sources", price.ContributingSources).
		Msg("price reported")
}

// transmit submits the report with gas-bumped retries: each attempt
// multiplies the gas price by (1 + retry multiplier), capped at the base
// suggestion times GasPriceMultiplier, with jittered exponential backoff
// between attempts.
func (r *Reporter) transmit(ctx context.Context, price decimal.Decimal) error {
	base, err := r.chain.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	maxGasPrice := decimal.NewFromBigInt(base, 0).Mul(r.cfg.GasPriceMultiplier)
	gasPrice := decimal.NewFromBigInt(base, 0)
	value := chain.PriceToReportValue(price)

	var lastErr error
	for attempt := 0; attempt <= r.cfg.TransactionRetryLimit; attempt++ {
		if attempt > 0 {
			r.metrics.TransactionRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		rates, err := r.chain.Rates(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		lesser, greater := chain.FindNeighbors(r.filterExcluded(rates), r.chain.ReporterAddress(), value)

		txHash, err := r.chain.Report(ctx, value, lesser, greater, gasPrice.BigInt())
		if err == nil {
			r.log.Info().Str("tx", txHash.Hex()).Int("attempt", attempt).Msg("report transaction accepted")
			return nil
		}
		lastErr = err
		r.log.Warn().Err(err).Int("attempt", attempt).Msg("report transaction rejected, bumping gas price")

		gasPrice = gasPrice.Mul(decimal.NewFromInt(1).Add(r.cfg.TransactionRetryGasPriceMultiplier))
		if gasPrice.GreaterThan(maxGasPrice) {
			gasPrice = maxGasPrice
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrSubmissionFailed, r.cfg.TransactionRetryLimit+1, lastErr)
}

// backoff is exponential in the attempt number, capped at 30s, with up to
// 25% added jitter.
func (r *Reporter) backoff(attempt int) time.Duration {
	shift := uint(attempt - 1)
	if shift > 5 {
		shift = 5
	}
	d := r.cfg.RetryBackoffBase << shift
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if quarter := int64(d) / 4; quarter > 0 {
		d += time.Duration(r.rng.Int63n(quarter))
	}
	return d
}

// filterExcluded drops elements owned by decommissioned oracles.
func (r *Reporter) filterExcluded(rates []chain.OracleRate) []chain.OracleRate {
	if len(r.cfg.ExcludedOracles) == 0 {
		return rates
	}
	out := make([]chain.OracleRate, 0, len(rates))
	for _, rate := range rates {
		excluded := false
		for _, addr := range r.cfg.ExcludedOracles {
			if rate.Oracle == addr {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, rate)
		}
	}
	return out
}

// removeExpiredOnce clears stale on-chain reports for the pair.
func (r *Reporter) removeExpiredOnce(ctx context.Context) {
	gasPrice, err := r.chain.SuggestGasPrice(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("skipping expired-report removal, no gas price")
		return
	}
	batch := r.cfg.RemoveExpiredBatch
	if batch == 0 {
		batch = 1
	}
	txHash, err := r.chain.RemoveExpiredReports(ctx, batch, gasPrice)
	if err != nil {
		r.log.Warn().Err(err).Msg("expired-report removal failed")
		return
	}
	r.log.Info().Str("tx", txHash.Hex()).Msg("expired reports removed")
}
