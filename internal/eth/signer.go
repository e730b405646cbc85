package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSigner = errors.New("eth: invalid signer")

// Signer signs transactions for one account. The Submitter serializes by Address, so two Signer
// values for the same key share a nonce sequence.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner holds its private key in memory. Suite accounts are generated per scenario and
// discarded with it.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address

	mu      sync.Mutex
	chainID *big.Int
	signer  types.Signer
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	var addr common.Address
	if key != nil {
		addr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &LocalSigner{key: key, addr: addr}
}

// GenerateLocalSigner creates a signer for a fresh account with no history on any chain.
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("eth: generate key: %w", err)
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.key == nil || tx == nil || chainID == nil || chainID.Sign() <= 0 {
		return nil, ErrInvalidSigner
	}
	return types.SignTx(tx, s.signerFor(chainID), s.key)
}

func (s *LocalSigner) signerFor(chainID *big.Int) types.Signer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signer == nil || s.chainID.Cmp(chainID) != 0 {
		s.chainID = new(big.Int).Set(chainID)
		s.signer = types.LatestSignerForChainID(chainID)
	}
	return s.signer
}
