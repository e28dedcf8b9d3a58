// Package chain talks to the Celo blockchain: the SortedOracles contract
// for report submission and removal, block headers for the block-based
// report strategy, and transaction signing.
package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for the reporter identity. Wallet backends
// (local key, HSM) implement this; the oracle core only depends on the
// interface.
type Signer interface {
	// Address is the reporter identity.
	Address() common.Address
	// SignTx signs a transaction for the given chain.
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// privateKeySigner signs with an in-process secp256k1 key. This backs the
// PRIVATE_KEY wallet type; AZURE_HSM is provided by an external signer.
type privateKeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewPrivateKeySigner builds a signer from a hex-encoded private key.
func NewPrivateKeySigner(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &privateKeySigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *privateKeySigner) Address() common.Address { return s.addr }

func (s *privateKeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
