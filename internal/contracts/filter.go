package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/eth"
)

// Filter is the transfer filter contract. A recipient's filter level is the minimum KYC level a
// sender needs for the node to accept a value transfer to it.
type Filter struct {
	contract
}

func NewFilter(address common.Address, parsed abi.ABI, caller Caller, sub Submitter) *Filter {
	return &Filter{contract: newContract(address, parsed, caller, sub)}
}

func (f *Filter) BuildSetFilterLevel(level uint64) (eth.TxRequest, error) {
	return f.build(nil, "setFilterLevel", u256(level))
}

// SetFilterLevel sets the signer's own filter level.
func (f *Filter) SetFilterLevel(ctx context.Context, signer eth.Signer, level uint64) (eth.SendResult, error) {
	req, err := f.BuildSetFilterLevel(level)
	return f.submit(ctx, signer, req, err)
}

// ViewFilterLevel returns the filter level of opts.From.
func (f *Filter) ViewFilterLevel(ctx context.Context, opts *CallOpts) (uint64, error) {
	if opts == nil || (opts.From == common.Address{}) {
		return 0, ErrInvalidInput
	}
	return f.callUint64(ctx, opts, "viewFilterLevel")
}

// Allows reports whether a transfer from sender to recipient would pass the filter.
func (f *Filter) Allows(ctx context.Context, opts *CallOpts, sender, recipient common.Address) (bool, error) {
	return f.callBool(ctx, opts, "filter", sender, recipient)
}
