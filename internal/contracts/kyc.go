package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

// KYC is the KYC registry contract: requests, centre decisions, levels, deposit payments and
// the centre role set.
type KYC struct {
	contract
}

func NewKYC(address common.Address, parsed abi.ABI, caller Caller, sub Submitter) *KYC {
	return &KYC{contract: newContract(address, parsed, caller, sub)}
}

func (k *KYC) BuildCreateRequest(level uint64, data common.Hash, deposit *big.Int) (eth.TxRequest, error) {
	return k.build(deposit, "createKYCRequest", u256(level), data)
}

// CreateRequest asks for level, escrowing deposit. Any excess over the level price is refunded.
func (k *KYC) CreateRequest(ctx context.Context, signer eth.Signer, level uint64, data common.Hash, deposit *big.Int) (eth.SendResult, error) {
	req, err := k.BuildCreateRequest(level, data, deposit)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildApprove(index uint64) (eth.TxRequest, error) {
	return k.build(nil, "approveKYCRequest", u256(index))
}

func (k *KYC) Approve(ctx context.Context, signer eth.Signer, index uint64) (eth.SendResult, error) {
	req, err := k.BuildApprove(index)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildDecline(index uint64) (eth.TxRequest, error) {
	return k.build(nil, "declineRequest", u256(index))
}

func (k *KYC) Decline(ctx context.Context, signer eth.Signer, index uint64) (eth.SendResult, error) {
	req, err := k.BuildDecline(index)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildRepairLostRequest() (eth.TxRequest, error) {
	return k.build(nil, "repairLostRequest")
}

// RepairLostRequest withdraws the signer's last request after its centre lost the role.
func (k *KYC) RepairLostRequest(ctx context.Context, signer eth.Signer) (eth.SendResult, error) {
	req, err := k.BuildRepairLostRequest()
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildDecreaseLevel(user common.Address, level uint64) (eth.TxRequest, error) {
	return k.build(nil, "decreaseKYCLevel", user, u256(level))
}

func (k *KYC) DecreaseLevel(ctx context.Context, signer eth.Signer, user common.Address, level uint64) (eth.SendResult, error) {
	req, err := k.BuildDecreaseLevel(user, level)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildSetLevelPrice(level uint64, price *big.Int) (eth.TxRequest, error) {
	return k.build(nil, "setLevelPrice", u256(level), price)
}

func (k *KYC) SetLevelPrice(ctx context.Context, signer eth.Signer, level uint64, price *big.Int) (eth.SendResult, error) {
	req, err := k.BuildSetLevelPrice(level, price)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildWithdrawPayments(payee common.Address) (eth.TxRequest, error) {
	return k.build(nil, "withdrawPayments", payee)
}

// WithdrawPayments pays out everything owed to payee. Any account may trigger it.
func (k *KYC) WithdrawPayments(ctx context.Context, signer eth.Signer, payee common.Address) (eth.SendResult, error) {
	req, err := k.BuildWithdrawPayments(payee)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildGrantRole(role common.Hash, account common.Address) (eth.TxRequest, error) {
	return k.build(nil, "grantRole", role, account)
}

func (k *KYC) GrantRole(ctx context.Context, signer eth.Signer, role common.Hash, account common.Address) (eth.SendResult, error) {
	req, err := k.BuildGrantRole(role, account)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildRevokeRole(role common.Hash, account common.Address) (eth.TxRequest, error) {
	return k.build(nil, "revokeRole", role, account)
}

func (k *KYC) RevokeRole(ctx context.Context, signer eth.Signer, role common.Hash, account common.Address) (eth.SendResult, error) {
	req, err := k.BuildRevokeRole(role, account)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) BuildRenounceRole(role common.Hash, account common.Address) (eth.TxRequest, error) {
	return k.build(nil, "renounceRole", role, account)
}

func (k *KYC) RenounceRole(ctx context.Context, signer eth.Signer, role common.Hash, account common.Address) (eth.SendResult, error) {
	req, err := k.BuildRenounceRole(role, account)
	return k.submit(ctx, signer, req, err)
}

func (k *KYC) LevelPrice(ctx context.Context, opts *CallOpts, level uint64) (*big.Int, error) {
	return k.callBig(ctx, opts, "levelPrices", u256(level))
}

func (k *KYC) Level(ctx context.Context, opts *CallOpts, user common.Address) (uint64, error) {
	return k.callUint64(ctx, opts, "level", user)
}

func (k *KYC) Payments(ctx context.Context, opts *CallOpts, payee common.Address) (*big.Int, error) {
	return k.callBig(ctx, opts, "payments", payee)
}

// ViewMyRequest returns the local-th request of opts.From.
func (k *KYC) ViewMyRequest(ctx context.Context, opts *CallOpts, local uint64) (kyc.Request, error) {
	if opts == nil || (opts.From == common.Address{}) {
		return kyc.Request{}, fmt.Errorf("%w: viewMyRequest needs a caller", ErrInvalidInput)
	}
	v, err := k.callOne(ctx, opts, "viewMyRequest", u256(local))
	if err != nil {
		return kyc.Request{}, err
	}
	return DecodeRequest(v)
}

// ViewRequestAssignedToCentre returns the local-th request assigned to centre and its global index.
func (k *KYC) ViewRequestAssignedToCentre(ctx context.Context, opts *CallOpts, centre common.Address, local uint64) (kyc.Request, uint64, error) {
	out, err := k.call(ctx, opts, "viewRequestAssignedToCentre", centre, u256(local))
	if err != nil {
		return kyc.Request{}, 0, err
	}
	if len(out) != 2 {
		return kyc.Request{}, 0, fmt.Errorf("%w: viewRequestAssignedToCentre returned %d values", ErrUnexpectedResult, len(out))
	}
	req, err := DecodeRequest(out[0])
	if err != nil {
		return kyc.Request{}, 0, err
	}
	idx, err := asUint64("viewRequestAssignedToCentre", out[1])
	if err != nil {
		return kyc.Request{}, 0, err
	}
	return req, idx, nil
}

// UserRequestIndex maps user's local request index to the global index.
func (k *KYC) UserRequestIndex(ctx context.Context, opts *CallOpts, user common.Address, local uint64) (uint64, error) {
	return k.callUint64(ctx, opts, "userKYCRequests", user, u256(local))
}

func (k *KYC) LastGlobalRequestIndex(ctx context.Context, opts *CallOpts, user common.Address) (uint64, error) {
	return k.callUint64(ctx, opts, "getLastGlobalRequestIndexOfAddress", user)
}

func (k *KYC) HasRole(ctx context.Context, opts *CallOpts, role common.Hash, account common.Address) (bool, error) {
	return k.callBool(ctx, opts, "hasRole", role, account)
}

func (k *KYC) RoleAdmin(ctx context.Context, opts *CallOpts, role common.Hash) (common.Hash, error) {
	return k.callHash(ctx, opts, "getRoleAdmin", role)
}

func (k *KYC) RoleMember(ctx context.Context, opts *CallOpts, role common.Hash, index uint64) (common.Address, error) {
	return k.callAddress(ctx, opts, "getRoleMember", role, u256(index))
}

func (k *KYC) RoleMemberCount(ctx context.Context, opts *CallOpts, role common.Hash) (uint64, error) {
	return k.callUint64(ctx, opts, "getRoleMemberCount", role)
}
