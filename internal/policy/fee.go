package policy

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

const (
	ReasonNotOwner  = "Ownable: caller is not the owner"
	ReasonZeroOwner = "Ownable: new owner is the zero address"
)

// Fee models the activation fee contract: a one-off payment that unlocks value transfers,
// behind an Ownable fee setting.
type Fee struct {
	mu    sync.Mutex
	fee   *big.Int
	owner common.Address
	paid  map[common.Address]bool
}

func NewFee(owner common.Address, fee *big.Int) *Fee {
	if fee == nil {
		fee = new(big.Int)
	}
	return &Fee{owner: owner, fee: new(big.Int).Set(fee), paid: make(map[common.Address]bool)}
}

// Pay activates account and returns the change from an overpayment.
func (f *Fee) Pay(account common.Address, value *big.Int) (*big.Int, error) {
	if value == nil {
		value = new(big.Int)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if value.Cmp(f.fee) < 0 {
		return nil, &kyc.RevertError{Reason: kyc.ReasonNotEnoughEther}
	}
	f.paid[account] = true
	return new(big.Int).Sub(value, f.fee), nil
}

func (f *Fee) Paid(account common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[account]
}

func (f *Fee) InitialFee() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.fee)
}

func (f *Fee) Owner() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

func (f *Fee) ChangeFee(caller common.Address, fee *big.Int) error {
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("%w: fee must be >= 0", kyc.ErrInvalidInput)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.onlyOwner(caller); err != nil {
		return err
	}
	f.fee = new(big.Int).Set(fee)
	return nil
}

func (f *Fee) TransferOwnership(caller, newOwner common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.onlyOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return &kyc.RevertError{Reason: ReasonZeroOwner}
	}
	f.owner = newOwner
	return nil
}

// RenounceOwnership leaves the contract ownerless; every owner-only call reverts afterwards.
func (f *Fee) RenounceOwnership(caller common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.onlyOwner(caller); err != nil {
		return err
	}
	f.owner = common.Address{}
	return nil
}

func (f *Fee) onlyOwner(caller common.Address) error {
	if caller != f.owner || caller == (common.Address{}) {
		return &kyc.RevertError{Reason: ReasonNotOwner}
	}
	return nil
}
