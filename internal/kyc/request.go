package kyc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Request mirrors the contract's KYC request record.
type Request struct {
	Requester common.Address
	Data      common.Hash
	Level     uint64
	Status    Status
	Centre    common.Address
	Deposit   *big.Int
}

func (r Request) clone() Request {
	if r.Deposit != nil {
		r.Deposit = new(big.Int).Set(r.Deposit)
	}
	return r
}
