package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestPriceToReportValue(t *testing.T) {
	value := PriceToReportValue(decimal.RequireFromString("0.5"))
	want, _ := new(big.Int).SetString("500000000000000000000000", 10)
	assert.Equal(t, 0, value.Cmp(want))

	// Sub-fixidity dust truncates.
	tiny := PriceToReportValue(decimal.New(1, -30))
	assert.Equal(t, 0, tiny.Sign())
}

func TestFindNeighbors(t *testing.T) {
	reporter := addr(9)
	// Contract order: descending by value.
	rates := []OracleRate{
		{Oracle: addr(1), Value: big.NewInt(400)},
		{Oracle: addr(2), Value: big.NewInt(300)},
		{Oracle: reporter, Value: big.NewInt(250)},
		{Oracle: addr(3), Value: big.NewInt(200)},
	}

	lesser, greater := FindNeighbors(rates, reporter, big.NewInt(350))
	assert.Equal(t, addr(2), lesser)
	assert.Equal(t, addr(1), greater)
}

func TestFindNeighborsSkipsOwnReport(t *testing.T) {
	reporter := addr(9)
	rates := []OracleRate{
		{Oracle: addr(1), Value: big.NewInt(400)},
		{Oracle: reporter, Value: big.NewInt(300)},
		{Oracle: addr(2), Value: big.NewInt(200)},
	}

	lesser, greater := FindNeighbors(rates, reporter, big.NewInt(300))
	assert.Equal(t, addr(2), lesser)
	assert.Equal(t, addr(1), greater)
}

func TestFindNeighborsAtExtremes(t *testing.T) {
	rates := []OracleRate{
		{Oracle: addr(1), Value: big.NewInt(400)},
		{Oracle: addr(2), Value: big.NewInt(200)},
	}

	lesser, greater := FindNeighbors(rates, addr(9), big.NewInt(500))
	assert.Equal(t, addr(1), lesser)
	assert.Equal(t, common.Address{}, greater)

	lesser, greater = FindNeighbors(rates, addr(9), big.NewInt(100))
	assert.Equal(t, common.Address{}, lesser)
	assert.Equal(t, addr(2), greater)
}

func TestPrivateKeySigner(t *testing.T) {
	s, err := NewPrivateKeySigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, s.Address())

	// The 0x prefix is tolerated.
	s2, err := NewPrivateKeySigner("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, s.Address(), s2.Address())

	_, err = NewPrivateKeySigner("not-a-key")
	assert.Error(t, err)
}
