package eth

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultGasLimit is the fixed gas ceiling attached to every submission. Gas is never estimated;
// a transaction whose true cost exceeds the ceiling fails.
const DefaultGasLimit uint64 = 300_000

var ErrInvalidFeeArgs = errors.New("eth: invalid fee args")

// CalcGasPrice returns the legacy gas price to attach: the node's suggestion, raised to floor.
//
// floor may be nil.
func CalcGasPrice(suggested, floor *big.Int) (*big.Int, error) {
	if suggested == nil || suggested.Sign() < 0 {
		return nil, ErrInvalidFeeArgs
	}
	if floor != nil && floor.Sign() < 0 {
		return nil, ErrInvalidFeeArgs
	}

	price := new(big.Int).Set(suggested)
	if floor != nil && price.Cmp(floor) < 0 {
		price.Set(floor)
	}
	return price, nil
}

// FeePaid returns gasUsed * effective gas price for a mined transaction.
//
// Nodes that omit effectiveGasPrice in receipts fall back to gasPrice, which is what the sender
// paid for a legacy transaction.
func FeePaid(receipt *types.Receipt, gasPrice *big.Int) (*big.Int, error) {
	if receipt == nil {
		return nil, ErrInvalidFeeArgs
	}
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = gasPrice
	}
	if price == nil || price.Sign() < 0 {
		return nil, ErrInvalidFeeArgs
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price), nil
}
