package reporter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celo-org/celo-oracle/internal/aggregator"
	"github.com/celo-org/celo-oracle/internal/chain"
	"github.com/celo-org/celo-oracle/internal/metrics"
	"github.com/celo-org/celo-oracle/internal/pricesource"
)

// fakeChain scripts Report outcomes and records attempted gas prices.
type fakeChain struct {
	failures  int
	calls     int
	gasPrices []*big.Int
	removed   []uint64
}

func (f *fakeChain) ReporterAddress() common.Address { return common.Address{} }

func (f *fakeChain) Rates(context.Context) ([]chain.OracleRate, error) {
	return []chain.OracleRate{}, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) Report(_ context.Context, _ *big.Int, _, _ common.Address, gasPrice *big.Int) (common.Hash, error) {
	f.calls++
	f.gasPrices = append(f.gasPrices, new(big.Int).Set(gasPrice))
	if f.calls <= f.failures {
		return common.Hash{}, errors.New("underpriced")
	}
	return common.Hash{1}, nil
}

func (f *fakeChain) RemoveExpiredReports(_ context.Context, n uint64, _ *big.Int) (common.Hash, error) {
	f.removed = append(f.removed, n)
	return common.Hash{2}, nil
}

func (f *fakeChain) SubscribeNewHeads(context.Context, chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

type staticSource struct {
	name string
	buf  *pricesource.WindowedBuffer
}

func (s *staticSource) Name() string                        { return s.name }
func (s *staticSource) Buffer() *pricesource.WindowedBuffer { return s.buf }

func newTestReporter(t *testing.T, fc *fakeChain, retries int) *Reporter {
	t.Helper()
	m := metrics.NewForTesting()

	buf := pricesource.NewWindowedBuffer(5 * time.Minute)
	require.True(t, buf.Insert(pricesource.Observation{
		Source:    "src",
		Timestamp: time.Now().UnixMilli(),
		Bid:       d("0.45"),
		Ask:       d("0.47"),
		Mid:       d("0.46"),
		LastPrice: d("0.46"),
		Volume:    d("1000"),
	}))
	agg := aggregator.New("CELOUSD", []aggregator.PriceSource{&staticSource{name: "src", buf: buf}}, aggregator.Config{
		Method:                    aggregator.Midprices,
		MaxPercentageBidAskSpread: d("0.1"),
		MaxPercentageDeviation:    d("0.2"),
		MaxSourceWeightShare:      d("0.99"),
		MinPriceSourceCount:       1,
	}, m, zerolog.Nop())

	breaker := NewCircuitBreaker(BreakerConfig{
		Enabled:                 true,
		PriceChangeThresholdMin: d("0.1"),
		PriceChangeThresholdMax: d("0.25"),
		TimeMultiplier:          d("7200"),
		TripDuration:            20 * time.Minute,
	}, m, zerolog.Nop())

	return New(Config{
		Pair:                               "CELOUSD",
		Strategy:                           TimerBased,
		TransactionRetryLimit:              retries,
		TransactionRetryGasPriceMultiplier: d("0.1"),
		GasPriceMultiplier:                 d("5"),
		RetryBackoffBase:                   time.Microsecond,
		RemoveExpiredBatch:                 1,
	}, agg, fc, breaker, m, zerolog.Nop())
}

func TestReportOnceSubmits(t *testing.T) {
	fc := &fakeChain{}
	r := newTestReporter(t, fc, 3)

	r.reportOnce(context.Background())

	assert.Equal(t, 1, fc.calls)
	assert.True(t, r.lastReported.Equal(d("0.46")), "lastReported %s", r.lastReported)
	assert.False(t, r.lastReportTime.IsZero())
}

func TestTransmitBumpsGasPriceOnRetry(t *testing.T) {
	fc := &fakeChain{failures: 2}
	r := newTestReporter(t, fc, 3)

	err := r.transmit(context.Background(), d("0.46"))
	require.NoError(t, err)
	require.Len(t, fc.gasPrices, 3)

	assert.Equal(t, int64(1_000_000_000), fc.gasPrices[0].Int64())
	assert.Equal(t, int64(1_100_000_000), fc.gasPrices[1].Int64())
	assert.Equal(t, int64(1_210_000_000), fc.gasPrices[2].Int64())
}

func TestTransmitGasPriceCapped(t *testing.T) {
	fc := &fakeChain{failures: 30}
	r := newTestReporter(t, fc, 30)
	r.cfg.GasPriceMultiplier = d("1.2")

	_ = r.transmit(context.Background(), d("0.46"))
	for _, gp := range fc.gasPrices {
		assert.LessOrEqual(t, gp.Int64(), int64(1_200_000_000))
	}
}

func TestTransmitExhaustionFails(t *testing.T) {
	fc := &fakeChain{failures: 10}
	r := newTestReporter(t, fc, 2)

	err := r.transmit(context.Background(), d("0.46"))
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, 3, fc.calls)
}

func TestBreakerSuppressesSubmission(t *testing.T) {
	fc := &fakeChain{}
	r := newTestReporter(t, fc, 3)
	r.lastReported = d("0.30")

	// 0.30 -> 0.46 is a >25% move: the breaker trips and nothing reaches
	// the chain.
	r.reportOnce(context.Background())
	assert.Equal(t, 0, fc.calls)
	assert.Equal(t, BreakerTripped, r.breaker.State(time.Now()))
}

func TestRemoveExpiredOnce(t *testing.T) {
	fc := &fakeChain{}
	r := newTestReporter(t, fc, 3)

	r.removeExpiredOnce(context.Background())
	require.Len(t, fc.removed, 1)
	assert.Equal(t, uint64(1), fc.removed[0])
}
