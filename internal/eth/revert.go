package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted"

var (
	// ErrRejected marks a transaction or call the node refused: either before inclusion or because
	// its simulation reverted.
	ErrRejected = errors.New("eth: rejected by node")

	// ErrNoRevert is returned by ReplayRevert when the replayed call succeeds.
	ErrNoRevert = errors.New("eth: replay did not revert")
)

// RejectedError carries the node's structured error. Message is the node-facing text callers
// match on, e.g. "account not activated" or "execution reverted: Ownable: caller is not the owner".
type RejectedError struct {
	Op      string
	Code    int
	Message string
	Data    []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("eth: %s rejected: %s", e.Op, e.Reason())
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Reason returns the human-readable failure text. Revert data is decoded when the node only
// reported a bare "execution reverted".
func (e *RejectedError) Reason() string {
	if e.Message == revertPrefix && len(e.Data) > 0 {
		if r, err := abi.UnpackRevert(e.Data); err == nil {
			return revertPrefix + ": " + r
		}
	}
	return e.Message
}

// AsRejection converts a JSON-RPC error response into a RejectedError. Anything that is not a
// structured node error (dial failures, HTTP errors, malformed responses) is returned unchanged.
func AsRejection(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *RejectedError
	if errors.As(err, &already) {
		return err
	}
	var rerr rpc.Error
	if !errors.As(err, &rerr) {
		return err
	}
	out := &RejectedError{
		Op:      op,
		Code:    rerr.ErrorCode(),
		Message: rerr.Error(),
	}
	var derr rpc.DataError
	if errors.As(err, &derr) {
		out.Data = revertData(derr.ErrorData())
	}
	return out
}

// Reason extracts the revert or rejection reason from err, whichever channel produced it.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason()
	}
	if conv := AsRejection("", err); errors.As(conv, &rej) {
		return rej.Reason()
	}
	return err.Error()
}

// isRevert reports whether err is a rejection caused by contract execution reverting.
func isRevert(err error) bool {
	var rej *RejectedError
	if !errors.As(AsRejection("", err), &rej) {
		return false
	}
	return strings.HasPrefix(rej.Message, revertPrefix)
}

// ReplayRevert re-executes a mined transaction that reverted as an eth_call against its parent
// block and returns the revert reason. Receipts carry no message, so this is the only way to
// recover one for a status-0 transaction.
//
// The parent block does not see transactions mined ahead of this one in the same block. When the
// parent replay succeeds and the receipt is not first in its block, the call is retried against
// the receipt's own block, whose state includes those transactions but also any mined after it.
// A revert that depends on ordering inside the block may still yield ErrNoRevert or a different
// reason; callers should treat the result as best effort.
func ReplayRevert(ctx context.Context, caller ethereum.ContractCaller, from common.Address, req TxRequest, receipt *types.Receipt) (string, error) {
	if caller == nil || receipt == nil {
		return "", ErrInvalidTxRequest
	}
	msg := ethereum.CallMsg{
		From:  from,
		To:    req.To,
		Gas:   DefaultGasLimit,
		Value: req.value(),
		Data:  req.Data,
	}
	var parent *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		parent = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	reason, err := replayAt(ctx, caller, msg, parent)
	if errors.Is(err, ErrNoRevert) && parent != nil && receipt.TransactionIndex > 0 {
		return replayAt(ctx, caller, msg, receipt.BlockNumber)
	}
	return reason, err
}

func replayAt(ctx context.Context, caller ethereum.ContractCaller, msg ethereum.CallMsg, block *big.Int) (string, error) {
	_, err := caller.CallContract(ctx, msg, block)
	if err == nil {
		return "", ErrNoRevert
	}
	conv := AsRejection("replay", err)
	var rej *RejectedError
	if !errors.As(conv, &rej) {
		return "", conv
	}
	return rej.Reason(), nil
}

func revertData(v any) []byte {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil
		}
		return b
	case []byte:
		return d
	case hexutil.Bytes:
		return d
	default:
		return nil
	}
}
