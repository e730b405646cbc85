package eth

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Simulate dry-runs req from the given account with eth_estimateGas and returns the estimate.
// Nothing is signed or broadcast. A revert or refusal comes back as *RejectedError, the same
// shape a Submitter preflight produces.
func Simulate(ctx context.Context, est ethereum.GasEstimator, from common.Address, req TxRequest) (uint64, error) {
	if est == nil {
		return 0, ErrInvalidTxRequest
	}
	gas, err := est.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    req.To,
		Gas:   DefaultGasLimit,
		Value: req.value(),
		Data:  req.Data,
	})
	if err != nil {
		return 0, AsRejection("simulate", err)
	}
	return gas, nil
}
