package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/eth"
)

// Fee is the activation fee contract. An account may send value transfers only after it has
// paid the fee once.
type Fee struct {
	contract
}

func NewFee(address common.Address, parsed abi.ABI, caller Caller, sub Submitter) *Fee {
	return &Fee{contract: newContract(address, parsed, caller, sub)}
}

func (f *Fee) BuildPay(value *big.Int) (eth.TxRequest, error) {
	return f.build(value, "pay")
}

// Pay activates signer's account. Overpayment is returned to the sender.
func (f *Fee) Pay(ctx context.Context, signer eth.Signer, value *big.Int) (eth.SendResult, error) {
	req, err := f.BuildPay(value)
	return f.submit(ctx, signer, req, err)
}

func (f *Fee) PaidFee(ctx context.Context, opts *CallOpts, account common.Address) (bool, error) {
	return f.callBool(ctx, opts, "paidFee", account)
}

func (f *Fee) InitialFee(ctx context.Context, opts *CallOpts) (*big.Int, error) {
	return f.callBig(ctx, opts, "initialFee")
}

func (f *Fee) BuildChangeFee(fee *big.Int) (eth.TxRequest, error) {
	return f.build(nil, "changeFee", fee)
}

func (f *Fee) ChangeFee(ctx context.Context, signer eth.Signer, fee *big.Int) (eth.SendResult, error) {
	req, err := f.BuildChangeFee(fee)
	return f.submit(ctx, signer, req, err)
}

func (f *Fee) Owner(ctx context.Context, opts *CallOpts) (common.Address, error) {
	return f.callAddress(ctx, opts, "owner")
}

func (f *Fee) BuildTransferOwnership(newOwner common.Address) (eth.TxRequest, error) {
	return f.build(nil, "transferOwnership", newOwner)
}

func (f *Fee) TransferOwnership(ctx context.Context, signer eth.Signer, newOwner common.Address) (eth.SendResult, error) {
	req, err := f.BuildTransferOwnership(newOwner)
	return f.submit(ctx, signer, req, err)
}

func (f *Fee) BuildRenounceOwnership() (eth.TxRequest, error) {
	return f.build(nil, "renounceOwnership")
}

// RenounceOwnership leaves the contract without an owner for good.
func (f *Fee) RenounceOwnership(ctx context.Context, signer eth.Signer) (eth.SendResult, error) {
	req, err := f.BuildRenounceOwnership()
	return f.submit(ctx, signer, req, err)
}
