// Package aggregator combines the per-source observation windows into one
// authoritative price, or fails cleanly when the surviving data is too
// thin to trust.
package aggregator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/celo-org/celo-oracle/internal/metrics"
	"github.com/celo-org/celo-oracle/internal/pricesource"
)

// Method selects how surviving sources are priced.
type Method string

const (
	// Midprices aggregates (bid+ask)/2 midpoints. The documented default.
	Midprices Method = "MIDPRICES"
	// Trades aggregates last-trade prices.
	Trades Method = "TRADES"
)

// ParseMethod resolves a configured method name, case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(s)); m {
	case Midprices, Trades:
		return m, nil
	}
	return "", fmt.Errorf("unknown aggregation method %q (want MIDPRICES or TRADES)", s)
}

// Config tunes the aggregation validity predicates.
type Config struct {
	Method Method
	// MaxPercentageBidAskSpread rejects sources with (ask-bid)/mid above
	// this fraction. The bound is inclusive.
	MaxPercentageBidAskSpread decimal.Decimal
	// MaxPercentageDeviation rejects sources deviating from the weighted
	// median reference by more than this fraction. Inclusive.
	MaxPercentageDeviation decimal.Decimal
	// MaxSourceWeightShare caps any single source's share of total weight.
	MaxSourceWeightShare decimal.Decimal
	// MinPriceSourceCount is the minimum surviving source count.
	MinPriceSourceCount int
	// MinAggregatedVolume is the minimum total surviving volume.
	MinAggregatedVolume decimal.Decimal
	// MaxNoTradeDuration excludes sources whose latest observation is
	// older than this.
	MaxNoTradeDuration time.Duration
	// ScalingRate decays a source's weight by (1-rate) per whole minute of
	// observation age. Zero disables decay.
	ScalingRate decimal.Decimal
}

// AggregatedPrice is a successful aggregation outcome.
type AggregatedPrice struct {
	Value               decimal.Decimal
	Timestamp           time.Time
	ContributingSources int
	// Weights holds each surviving source's final (clipped) weight.
	Weights map[string]decimal.Decimal
}

// Failure kinds, distinguishable with errors.Is.
var (
	ErrInsufficientSources = errors.New("insufficient valid price sources")
	ErrInsufficientVolume  = errors.New("insufficient aggregated volume")
)

// PriceSource is the aggregator's read-only view of one price source.
type PriceSource interface {
	Name() string
	Buffer() *pricesource.WindowedBuffer
}

// Aggregator owns all source buffers and combines them on demand.
type Aggregator struct {
	pair    string
	sources []PriceSource
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds an aggregator over the configured sources. Sources must be in
// configuration order: it is the stable tie-break for equal weights.
func New(pair string, sources []PriceSource, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		pair:    pair,
		sources: sources,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "aggregator").Str("pair", pair).Logger(),
	}
}

// Sources returns the aggregator's sources in configuration order.
func (a *Aggregator) Sources() []PriceSource { return a.sources }

// candidate pairs an observation with its aggregation weight.
type candidate struct {
	obs    pricesource.Observation
	price  decimal.Decimal
	weight decimal.Decimal
	index  int
}

// Aggregate snapshots every source's latest in-window observation at now
// and reduces them to one price.
func (a *Aggregator) Aggregate(now time.Time) (AggregatedPrice, error) {
	result, err := a.aggregate(now)
	outcome := "success"
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientSources):
			outcome = "insufficient_sources"
		case errors.Is(err, ErrInsufficientVolume):
			outcome = "insufficient_volume"
		default:
			outcome = "error"
		}
	}
	a.metrics.AggregationOutcomes.WithLabelValues(string(a.cfg.Method), outcome).Inc()
	if err == nil {
		a.metrics.AggregatedPrice.WithLabelValues(a.pair).Set(result.Value.InexactFloat64())
		a.metrics.ContributingSources.WithLabelValues(a.pair).Set(float64(result.ContributingSources))
	}
	return result, err
}

func (a *Aggregator) aggregate(now time.Time) (AggregatedPrice, error) {
	candidates := a.collect(now)
	candidates = a.filterSpread(candidates)
	candidates = a.filterDeviation(candidates)

	if len(candidates) < a.cfg.MinPriceSourceCount {
		return AggregatedPrice{}, fmt.Errorf("%w: %d of %d required", ErrInsufficientSources, len(candidates), a.cfg.MinPriceSourceCount)
	}
	totalVolume := decimal.Zero
	for _, c := range candidates {
		if !c.obs.EqualWeight {
			totalVolume = totalVolume.Add(c.obs.Volume)
		}
	}
	if totalVolume.LessThan(a.cfg.MinAggregatedVolume) {
		return AggregatedPrice{}, fmt.Errorf("%w: %s below %s", ErrInsufficientVolume, totalVolume, a.cfg.MinAggregatedVolume)
	}

	clipWeights(candidates, a.cfg.MaxSourceWeightShare)

	value := weightedMean(candidates)
	weights := make(map[string]decimal.Decimal, len(candidates))
	for _, c := range candidates {
		weights[c.obs.Source] = c.weight
	}
	return AggregatedPrice{
		Value:               value,
		Timestamp:           now,
		ContributingSources: len(candidates),
		Weights:             weights,
	}, nil
}

// collect gathers each source's latest in-window observation, excluding
// sources staler than maxNoTradeDuration.
func (a *Aggregator) collect(now time.Time) []candidate {
	var out []candidate
	for i, s := range a.sources {
		obs, ok := s.Buffer().LatestWithin(now)
		if !ok {
			continue
		}
		if a.cfg.MaxNoTradeDuration > 0 && obs.Timestamp < now.Add(-a.cfg.MaxNoTradeDuration).UnixMilli() {
			continue
		}
		price := obs.Mid
		if a.cfg.Method == Trades {
			price = obs.LastPrice
		}
		out = append(out, candidate{
			obs:    obs,
			price:  price,
			weight: a.weightOf(obs, now),
			index:  i,
		})
	}
	return out
}

// weightOf is the observation's aggregation weight: its volume (or 1 for
// equal-weight sources) decayed by the scaling rate per whole minute of
// age.
func (a *Aggregator) weightOf(obs pricesource.Observation, now time.Time) decimal.Decimal {
	w := obs.Volume
	if obs.EqualWeight {
		w = decimal.NewFromInt(1)
	}
	if a.cfg.ScalingRate.IsPositive() {
		ageMinutes := (now.UnixMilli() - obs.Timestamp) / time.Minute.Milliseconds()
		if ageMinutes > 0 {
			w = w.Mul(decimal.NewFromInt(1).Sub(a.cfg.ScalingRate).Pow(decimal.NewFromInt(ageMinutes)))
		}
	}
	return w
}

// filterSpread drops candidates whose relative bid-ask spread exceeds the
// configured maximum. A spread exactly at the bound survives.
func (a *Aggregator) filterSpread(in []candidate) []candidate {
	out := in[:0]
	for _, c := range in {
		mid := c.obs.Mid
		if mid.IsZero() {
			continue
		}
		spread := c.obs.Ask.Sub(c.obs.Bid).Div(mid)
		if spread.GreaterThan(a.cfg.MaxPercentageBidAskSpread) {
			a.log.Debug().Str("source", c.obs.Source).Str("spread", spread.String()).Msg("source rejected for excessive spread")
			continue
		}
		out = append(out, c)
	}
	return out
}

// filterDeviation drops candidates deviating from the volume-weighted
// median reference by more than the configured fraction. The weighted
// median, not the mean, is the reference: a single heavy outlier must not
// drag the reference toward itself. A deviation exactly at the bound
// survives.
func (a *Aggregator) filterDeviation(in []candidate) []candidate {
	if len(in) == 0 {
		return in
	}
	ref := weightedMedian(in)
	if ref.IsZero() {
		return in
	}
	out := in[:0]
	for _, c := range in {
		dev := c.price.Sub(ref).Abs().Div(ref)
		if dev.GreaterThan(a.cfg.MaxPercentageDeviation) {
			a.log.Debug().Str("source", c.obs.Source).Str("deviation", dev.String()).Msg("source rejected for excessive deviation")
			continue
		}
		out = append(out, c)
	}
	return out
}

// weightedMedian returns the weighted median price: the smallest price at
// which the cumulative weight reaches half the total. Equal weights break
// ties by configuration order.
func weightedMedian(cs []candidate) decimal.Decimal {
	sorted := make([]candidate, len(cs))
	copy(sorted, cs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].price.Equal(sorted[j].price) {
			return sorted[i].index < sorted[j].index
		}
		return sorted[i].price.LessThan(sorted[j].price)
	})

	total := decimal.Zero
	for _, c := range sorted {
		total = total.Add(c.weight)
	}
	half := total.Div(decimal.NewFromInt(2))
	cum := decimal.Zero
	for _, c := range sorted {
		cum = cum.Add(c.weight)
		if cum.GreaterThanOrEqual(half) {
			return c.price
		}
	}
	return sorted[len(sorted)-1].price
}

// weightedMean is sum(price*weight)/sum(weight).
func weightedMean(cs []candidate) decimal.Decimal {
	num, den := decimal.Zero, decimal.Zero
	for _, c := range cs {
		num = num.Add(c.price.Mul(c.weight))
		den = den.Add(c.weight)
	}
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// clipWeights caps any single candidate's share of total weight at
// maxShare, renormalizing iteratively until no candidate violates the
// cap. A cap below 1/n is unsatisfiable; weights then become equal.
func clipWeights(cs []candidate, maxShare decimal.Decimal) {
	if !maxShare.IsPositive() || len(cs) == 0 {
		return
	}
	n := decimal.NewFromInt(int64(len(cs)))
	if maxShare.Mul(n).LessThan(decimal.NewFromInt(1)) {
		for i := range cs {
			cs[i].weight = decimal.NewFromInt(1)
		}
		return
	}
	one := decimal.NewFromInt(1)
	for iter := 0; iter < len(cs); iter++ {
		total := decimal.Zero
		for _, c := range cs {
			total = total.Add(c.weight)
		}
		if total.IsZero() {
			return
		}
		clipped := false
		for i := range cs {
			share := cs[i].weight.Div(total)
			if share.GreaterThan(maxShare) {
				// Cap so the candidate's share of the new total is exactly
				// maxShare: w = maxShare/(1-maxShare) * (total - w_old).
				rest := total.Sub(cs[i].weight)
				cs[i].weight = maxShare.Div(one.Sub(maxShare)).Mul(rest)
				clipped = true
			}
		}
		if !clipped {
			return
		}
	}
}
