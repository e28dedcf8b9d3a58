package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// sortedOraclesABI covers the contract surface the oracle calls: report
// submission with sorted-list insertion neighbors, expired-report removal,
// and the current rates list for neighbor computation.
const sortedOraclesABI = `[
  {"name":"report","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},{"name":"value","type":"uint256"},
    {"name":"lesserKey","type":"address"},{"name":"greaterKey","type":"address"}],"outputs":[]},
  {"name":"removeExpiredReports","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},{"name":"n","type":"uint256"}],"outputs":[]},
  {"name":"getRates","type":"function","stateMutability":"view","inputs":[
    {"name":"token","type":"address"}],"outputs":[
    {"name":"","type":"address[]"},{"name":"","type":"uint256[]"},{"name":"","type":"uint256[]"}]}
]`

// fixidityDecimals is the SortedOracles value scale: reported values are
// fractions over 10^24.
const fixidityDecimals = 24

// ReportDenominator is the fixed denominator every report is expressed
// over.
var ReportDenominator = new(big.Int).Exp(big.NewInt(10), big.NewInt(fixidityDecimals), nil)

// PriceToReportValue scales a decimal price to the on-chain numerator over
// ReportDenominator, truncating sub-unit dust.
func PriceToReportValue(price decimal.Decimal) *big.Int {
	return price.Shift(fixidityDecimals).BigInt()
}

// OracleRate is one element of the on-chain sorted rates list.
type OracleRate struct {
	Oracle common.Address
	Value  *big.Int
}

// Client is the reporter's view of the chain.
type Client interface {
	// ReporterAddress is the identity reports are attributed to.
	ReporterAddress() common.Address
	// Rates returns the feed's current sorted rates list.
	Rates(ctx context.Context) ([]OracleRate, error)
	// SuggestGasPrice returns the node's current gas price estimate.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Report submits a price report with its insertion neighbors.
	Report(ctx context.Context, value *big.Int, lesser, greater common.Address, gasPrice *big.Int) (common.Hash, error)
	// RemoveExpiredReports clears up to n expired reports for the feed.
	RemoveExpiredReports(ctx context.Context, n uint64, gasPrice *big.Int) (common.Hash, error)
	// SubscribeNewHeads streams new block headers (block-based strategy).
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// EthClient implements Client over go-ethereum RPC connections: an HTTP
// endpoint for transactions and calls, and an optional WS endpoint for
// head subscriptions.
type EthClient struct {
	http    *ethclient.Client
	ws      *ethclient.Client
	abi     abi.ABI
	oracle  common.Address
	feed    common.Address
	signer  Signer
	chainID *big.Int
	log     zerolog.Logger
}

// Dial connects both endpoints and resolves the chain id. wsURL may be
// empty when the timer-based strategy is configured.
func Dial(ctx context.Context, httpURL, wsURL string, oracle, feed common.Address, signer Signer, log zerolog.Logger) (*EthClient, error) {
	parsed, err := abi.JSON(strings.NewReader(sortedOraclesABI))
	if err != nil {
		return nil, fmt.Errorf("parsing SortedOracles ABI: %w", err)
	}
	httpClient, err := ethclient.DialContext(ctx, httpURL)
	if err != nil {
		return nil, fmt.Errorf("dialing http rpc provider: %w", err)
	}
	chainID, err := httpClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving chain id: %w", err)
	}
	var wsClient *ethclient.Client
	if wsURL != "" {
		wsClient, err = ethclient.DialContext(ctx, wsURL)
		if err != nil {
			return nil, fmt.Errorf("dialing ws rpc provider: %w", err)
		}
	}
	return &EthClient{
		http:    httpClient,
		ws:      wsClient,
		abi:     parsed,
		oracle:  oracle,
		feed:    feed,
		signer:  signer,
		chainID: chainID,
		log:     log.With().Str("component", "chain_client").Logger(),
	}, nil
}

func (c *EthClient) ReporterAddress() common.Address { return c.signer.Address() }

func (c *EthClient) Rates(ctx context.Context) ([]OracleRate, error) {
	data, err := c.abi.Pack("getRates", c.feed)
	if err != nil {
		return nil, err
	}
	raw, err := c.http.CallContract(ctx, ethereum.CallMsg{To: &c.oracle, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling getRates: %w", err)
	}
	outputs, err := c.abi.Unpack("getRates", raw)
	if err != nil {
		return nil, fmt.Errorf("unpacking getRates: %w", err)
	}
	oracles, ok := outputs[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected getRates oracle list type %T", outputs[0])
	}
	values, ok := outputs[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getRates value list type %T", outputs[1])
	}
	if len(oracles) != len(values) {
		return nil, fmt.Errorf("getRates length mismatch: %d oracles, %d values", len(oracles), len(values))
	}
	rates := make([]OracleRate, len(oracles))
	for i := range oracles {
		rates[i] = OracleRate{Oracle: oracles[i], Value: values[i]}
	}
	return rates, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.http.SuggestGasPrice(ctx)
}

const (
	reportGasLimit        = 300_000
	removeExpiredGasLimit = 200_000
)

func (c *EthClient) Report(ctx context.Context, value *big.Int, lesser, greater common.Address, gasPrice *big.Int) (common.Hash, error) {
	data, err := c.abi.Pack("report", c.feed, value, lesser, greater)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, data, reportGasLimit, gasPrice)
}

func (c *EthClient) RemoveExpiredReports(ctx context.Context, n uint64, gasPrice *big.Int) (common.Hash, error) {
	data, err := c.abi.Pack("removeExpiredReports", c.feed, new(big.Int).SetUint64(n))
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, data, removeExpiredGasLimit, gasPrice)
}

// submit signs and broadcasts one contract call.
func (c *EthClient) submit(ctx context.Context, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	nonce, err := c.http.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &c.oracle,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := c.http.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcasting transaction: %w", err)
	}
	c.log.Info().
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Str("gas_price", gasPrice.String()).
		Msg("transaction submitted")
	return signed.Hash(), nil
}

func (c *EthClient) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if c.ws == nil {
		return nil, fmt.Errorf("no ws rpc provider configured")
	}
	return c.ws.SubscribeNewHead(ctx, ch)
}

// FindNeighbors locates the sorted-list insertion neighbors for a new
// report value, skipping the reporter's own existing element. rates must
// be in the contract's descending value order.
func FindNeighbors(rates []OracleRate, reporter common.Address, value *big.Int) (lesser, greater common.Address) {
	for _, r := range rates {
		if r.Oracle == reporter {
			continue
		}
		if r.Value.Cmp(value) > 0 {
			greater = r.Oracle
		} else if lesser == (common.Address{}) {
			lesser = r.Oracle
		}
	}
	return lesser, greater
}
