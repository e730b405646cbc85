package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/eth"
)

var (
	ErrInvalidInput     = errors.New("contracts: invalid input")
	ErrReadOnly         = errors.New("contracts: proxy has no submitter")
	ErrUnexpectedResult = errors.New("contracts: unexpected call result")
)

// Caller executes eth_call and fetches code. *ethclient.Client satisfies it.
type Caller interface {
	bind.ContractCaller
}

// Submitter broadcasts a transaction and waits for its receipt. *eth.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, signer eth.Signer, req eth.TxRequest) (eth.SendResult, error)
}

// CallOpts selects the caller identity and state for a view. The zero value calls from the zero
// address against the latest block.
type CallOpts struct {
	From        common.Address
	BlockNumber *big.Int
}

// From is shorthand for a latest-block view made by addr.
func From(addr common.Address) *CallOpts { return &CallOpts{From: addr} }

type contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	sub     Submitter
}

func newContract(address common.Address, parsed abi.ABI, caller Caller, sub Submitter) contract {
	return contract{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, caller, nil, nil),
		sub:     sub,
	}
}

func (c contract) Address() common.Address { return c.address }

// build encodes a call to method as an unsigned transaction. It performs no I/O.
func (c contract) build(value *big.Int, method string, args ...any) (eth.TxRequest, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return eth.TxRequest{}, fmt.Errorf("%w: pack %s: %v", ErrInvalidInput, method, err)
	}
	to := c.address
	return eth.TxRequest{To: &to, Value: value, Data: data}, nil
}

func (c contract) submit(ctx context.Context, signer eth.Signer, req eth.TxRequest, err error) (eth.SendResult, error) {
	if err != nil {
		return eth.SendResult{}, err
	}
	if c.sub == nil {
		return eth.SendResult{}, ErrReadOnly
	}
	return c.sub.Submit(ctx, signer, req)
}

// call runs a view and returns its unpacked outputs. Reverts come back as *eth.RejectedError.
func (c contract) call(ctx context.Context, opts *CallOpts, method string, args ...any) ([]any, error) {
	bo := &bind.CallOpts{Context: ctx}
	if opts != nil {
		bo.From = opts.From
		bo.BlockNumber = opts.BlockNumber
	}
	var out []any
	if err := c.bound.Call(bo, &out, method, args...); err != nil {
		return nil, eth.AsRejection("call "+method, err)
	}
	return out, nil
}

func (c contract) callOne(ctx context.Context, opts *CallOpts, method string, args ...any) (any, error) {
	out, err := c.call(ctx, opts, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedResult, method, len(out))
	}
	return out[0], nil
}

func (c contract) callBool(ctx context.Context, opts *CallOpts, method string, args ...any) (bool, error) {
	v, err := c.callOne(ctx, opts, method, args...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s type %T", ErrUnexpectedResult, method, v)
	}
	return b, nil
}

func (c contract) callBig(ctx context.Context, opts *CallOpts, method string, args ...any) (*big.Int, error) {
	v, err := c.callOne(ctx, opts, method, args...)
	if err != nil {
		return nil, err
	}
	return asBig(method, v)
}

func (c contract) callUint64(ctx context.Context, opts *CallOpts, method string, args ...any) (uint64, error) {
	v, err := c.callBig(ctx, opts, method, args...)
	if err != nil {
		return 0, err
	}
	return asUint64(method, v)
}

func (c contract) callAddress(ctx context.Context, opts *CallOpts, method string, args ...any) (common.Address, error) {
	v, err := c.callOne(ctx, opts, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(method, v)
}

func (c contract) callHash(ctx context.Context, opts *CallOpts, method string, args ...any) (common.Hash, error) {
	v, err := c.callOne(ctx, opts, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return asHash(method, v)
}

func u256(v uint64) *big.Int { return new(big.Int).SetUint64(v) }
