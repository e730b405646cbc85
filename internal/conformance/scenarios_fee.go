package conformance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/policy"
)

func feeScenarios() []Scenario {
	return []Scenario{
		{
			Name:  "fee/inactive_account_cannot_send",
			Title: "An account that never paid the activation fee cannot send funds",
			Run: func(t *T) {
				alice := t.RandomAccount()
				t.transfer(alice, t.env.Alpha().Address(), big.NewInt(1000), policy.ErrNotActivated)
			},
		},
		{
			Name:  "fee/activation",
			Title: "Paying the activation fee activates the account",
			Run: func(t *T) {
				alice := t.RandomAccount()
				t.payFee(alice, t.FeeModel().InitialFee())
				t.checkPaid(alice.Address())
			},
		},
		{
			Name:  "fee/activation_overpayment_returned",
			Title: "The part of an activation payment above the fee is returned",
			Run: func(t *T) {
				alice := t.RandomAccount()
				value := new(big.Int).Mul(t.FeeModel().InitialFee(), big.NewInt(2))
				if value.Sign() == 0 {
					value = big.NewInt(1000)
				}
				before := t.Balance(alice.Address())
				res, change := t.payFee(alice, value)
				spent := new(big.Int).Sub(value, change)
				want := new(big.Int).Sub(before, spent)
				checkBig(t, "balance after activation", t.Balance(alice.Address()), want.Sub(want, t.GasCost(res)))
				t.checkPaid(alice.Address())
			},
		},
		{
			Name:  "fee/activation_insufficient",
			Title: "An activation payment below the fee reverts",
			Run: func(t *T) {
				fee := t.FeeModel().InitialFee()
				if fee.Sign() == 0 {
					t.Skipf("activation fee is zero")
				}
				alice := t.RandomAccount()
				short := new(big.Int).Sub(fee, big.NewInt(1))
				_, predicted := t.FeeModel().Pay(alice.Address(), short)
				t.expectModelRevert("pay below fee", alice.Address(), t.Build(t.env.set.Fee.BuildPay(short)), predicted)
				paid, err := t.env.set.Fee.PaidFee(t.ctx, nil, alice.Address())
				if err != nil {
					t.Fatalf("paidFee: %v", err)
				}
				checkEqual(t, "paid after short payment", paid, false)
			},
		},
		{
			Name:      "fee/change_fee_by_owner",
			Title:     "The owner can change the activation fee",
			Exclusive: true,
			Run: func(t *T) {
				owner := t.feeOwner()
				old := t.FeeModel().InitialFee()
				restore := t.Build(t.env.set.Fee.BuildChangeFee(old))
				t.Cleanup(func(ctx context.Context) error { return t.env.sendCleanup(ctx, owner, restore) })

				next := new(big.Int).Add(old, big.NewInt(500))
				if err := t.FeeModel().ChangeFee(owner.Address(), next); err != nil {
					t.Fatalf("model changeFee: %v", err)
				}
				t.MustSend("changeFee", owner, t.Build(t.env.set.Fee.BuildChangeFee(next)))
				t.checkFee(next)
			},
		},
		{
			Name:  "fee/change_fee_by_non_owner",
			Title: "Only the owner can change the activation fee",
			Run: func(t *T) {
				alice := t.RandomAccount()
				next := big.NewInt(500)
				t.expectModelRevert("changeFee by non-owner", alice.Address(),
					t.Build(t.env.set.Fee.BuildChangeFee(next)), t.FeeModel().ChangeFee(alice.Address(), next))
				t.checkFee(t.FeeModel().InitialFee())
			},
		},
		{
			Name:  "fee/ownership/owner",
			Title: "The fee contract is owned by the genesis owner",
			Run: func(t *T) {
				owner, err := t.env.set.Fee.Owner(t.ctx, nil)
				if err != nil {
					t.Fatalf("owner: %v", err)
				}
				if owner != contracts.GenesisFeeOwner {
					t.Skipf("fee contract is owned by %s, the genesis owner is %s", owner, contracts.GenesisFeeOwner)
				}
				checkEqual(t, "owner", owner, t.FeeModel().Owner())
			},
		},
		{
			Name:      "fee/ownership/transfer_by_owner",
			Title:     "The owner can transfer ownership",
			Exclusive: true,
			Run: func(t *T) {
				owner := t.feeOwner()
				alice := t.RandomAccount()
				back := t.Build(t.env.set.Fee.BuildTransferOwnership(owner.Address()))
				t.Cleanup(func(ctx context.Context) error { return t.env.sendCleanup(ctx, alice, back) })

				if err := t.FeeModel().TransferOwnership(owner.Address(), alice.Address()); err != nil {
					t.Fatalf("model transferOwnership: %v", err)
				}
				t.MustSend("transferOwnership", owner, t.Build(t.env.set.Fee.BuildTransferOwnership(alice.Address())))
				t.checkOwner()
			},
		},
		{
			Name:  "fee/ownership/transfer_to_zero_address",
			Title: "Ownership cannot be transferred to the zero address",
			Run: func(t *T) {
				owner := t.feeOwner()
				var zero common.Address
				t.expectModelRevert("transferOwnership(0x0)", owner.Address(),
					t.Build(t.env.set.Fee.BuildTransferOwnership(zero)), t.FeeModel().TransferOwnership(owner.Address(), zero))
				t.checkOwner()
			},
		},
		{
			Name:  "fee/ownership/transfer_by_non_owner",
			Title: "Only the owner can transfer ownership",
			Run: func(t *T) {
				alice := t.RandomAccount()
				t.expectModelRevert("transferOwnership by non-owner", alice.Address(),
					t.Build(t.env.set.Fee.BuildTransferOwnership(alice.Address())),
					t.FeeModel().TransferOwnership(alice.Address(), alice.Address()))
				t.checkOwner()
			},
		},
		{
			Name:  "fee/ownership/renounce_by_non_owner",
			Title: "Only the owner can renounce ownership",
			Run: func(t *T) {
				alice := t.RandomAccount()
				t.expectModelRevert("renounceOwnership by non-owner", alice.Address(),
					t.Build(t.env.set.Fee.BuildRenounceOwnership()), t.FeeModel().RenounceOwnership(alice.Address()))
				t.checkOwner()
			},
		},
		{
			// Renouncing would lock the fee for the rest of the chain's life, so only the dry run is checked.
			Name:  "fee/ownership/renounce_by_owner",
			Title: "The owner can renounce ownership",
			Run: func(t *T) {
				owner := t.feeOwner()
				if err := t.env.Simulate(t.ctx, owner.Address(), t.Build(t.env.set.Fee.BuildRenounceOwnership())); err != nil {
					t.Errorf("renounceOwnership dry run: %v", err)
				}
			},
		},
	}
}

// feeOwner returns the signer owning the fee contract. Scenarios that need it skip on chains where
// ownership was never handed to the admin.
func (t *T) feeOwner() eth.Signer {
	admin := t.env.Admin()
	if owner := t.FeeModel().Owner(); owner != admin.Address() {
		t.Skipf("fee contract is owned by %s, no key available", owner)
	}
	return admin
}

// payFee activates s with value and returns the receipt with the model's change.
func (t *T) payFee(s eth.Signer, value *big.Int) (eth.SendResult, *big.Int) {
	change, err := t.FeeModel().Pay(s.Address(), value)
	if err != nil {
		t.Fatalf("model pay %s: %v", value, err)
	}
	res := t.MustSend("pay "+value.String(), s, t.Build(t.env.set.Fee.BuildPay(value)))
	return res, change
}

// expectModelRevert dry-runs req and requires the node to revert with the model's prediction.
func (t *T) expectModelRevert(what string, from common.Address, req eth.TxRequest, predicted error) {
	if predicted == nil {
		t.Fatalf("%s: model predicts success", what)
	}
	t.ExpectRevert(what, from, req, predicted.Error())
}

func (t *T) checkPaid(account common.Address) {
	paid, err := t.env.set.Fee.PaidFee(t.ctx, nil, account)
	if err != nil {
		t.Fatalf("paidFee(%s): %v", account, err)
	}
	checkEqual(t, "paid fee of "+account.Hex(), paid, t.FeeModel().Paid(account))
}

func (t *T) checkFee(want *big.Int) {
	fee, err := t.env.set.Fee.InitialFee(t.ctx, nil)
	if err != nil {
		t.Fatalf("initialFee: %v", err)
	}
	checkBig(t, "initial fee", fee, want)
}

func (t *T) checkOwner() {
	owner, err := t.env.set.Fee.Owner(t.ctx, nil)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	checkEqual(t, "owner", owner, t.FeeModel().Owner())
}
