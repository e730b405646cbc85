package conformance

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

// Build unwraps the result of a proxy BuildX call.
func (t *T) Build(req eth.TxRequest, err error) eth.TxRequest {
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return req
}

// MustSend submits req and stops the scenario unless it is mined with status 1.
func (t *T) MustSend(what string, from eth.Signer, req eth.TxRequest) eth.SendResult {
	res, err := t.env.Send(t.ctx, from, req)
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
	if !res.Succeeded() {
		t.Fatalf("%s: tx %s reverted: %s", what, res.TxHash, t.env.RevertReason(t.ctx, from.Address(), req, res))
	}
	t.Logf("%s: tx %s", what, res.TxHash)
	return res
}

// ExpectRevert dry-runs req from the given account and checks the node rejects it with want,
// the full node text such as "execution reverted: Not allowed to approve".
func (t *T) ExpectRevert(what string, from common.Address, req eth.TxRequest, want string) {
	t.expectRejection(what, t.env.Simulate(t.ctx, from, req), want, false)
}

// ExpectRefused broadcasts req and checks the node refuses to accept it with want.
func (t *T) ExpectRefused(what string, from eth.Signer, req eth.TxRequest, want string) {
	res, err := t.env.Send(t.ctx, from, req)
	if err == nil {
		t.Errorf("%s: accepted as tx %s, want refusal %q", what, res.TxHash, want)
		return
	}
	t.expectRejection(what, err, want, false)
}

// expectRejection checks err is a node rejection reading want. fold relaxes the match to ignore
// case, for messages that embed hex the node may render in either case.
func (t *T) expectRejection(what string, err error, want string, fold bool) {
	switch {
	case err == nil:
		t.Errorf("%s: succeeded, want %q", what, want)
	case !errors.Is(err, eth.ErrRejected):
		t.Fatalf("%s: %v", what, err)
	default:
		got := eth.Reason(err)
		if got != want && !(fold && strings.EqualFold(got, want)) {
			t.Errorf("%s: got %q, want %q", what, got, want)
		}
	}
}

// GasCost is what the sender paid for a mined transaction.
func (t *T) GasCost(res eth.SendResult) *big.Int {
	fee, err := eth.FeePaid(res.Receipt, res.GasPrice)
	if err != nil {
		t.Fatalf("gas cost of %s: %v", res.TxHash, err)
	}
	return fee
}

func (t *T) Balance(account common.Address) *big.Int {
	b, err := t.env.Balance(t.ctx, account)
	if err != nil {
		t.Fatalf("balance of %s: %v", account, err)
	}
	return b
}

func (t *T) Level(account common.Address) uint64 {
	lvl, err := t.env.set.KYC.Level(t.ctx, nil, account)
	if err != nil {
		t.Fatalf("level of %s: %v", account, err)
	}
	return lvl
}

func (t *T) Payments(payee common.Address) *big.Int {
	p, err := t.env.set.KYC.Payments(t.ctx, nil, payee)
	if err != nil {
		t.Fatalf("payments of %s: %v", payee, err)
	}
	return p
}

func (t *T) IsCentre(account common.Address) bool {
	ok, err := t.env.set.KYC.HasRole(t.ctx, nil, contracts.KYCCentreRole, account)
	if err != nil {
		t.Fatalf("hasRole %s: %v", account, err)
	}
	return ok
}

// MyRequest reads the local-th request of account through viewMyRequest.
func (t *T) MyRequest(account common.Address, local uint64) kyc.Request {
	r, err := t.env.set.KYC.ViewMyRequest(t.ctx, contracts.From(account), local)
	if err != nil {
		t.Fatalf("viewMyRequest(%d) as %s: %v", local, account, err)
	}
	return r
}

func checkEqual[V comparable](t *T, what string, got, want V) {
	if got != want {
		t.Errorf("%s: got %v, want %v", what, got, want)
	}
}

func checkBig(t *T, what string, got, want *big.Int) {
	if got == nil || want == nil || got.Cmp(want) != 0 {
		t.Errorf("%s: got %v, want %v", what, got, want)
	}
}

// checkRequest compares every field of a request read from the chain with the expected one.
func checkRequest(t *T, what string, got, want kyc.Request) {
	checkEqual(t, what+" requester", got.Requester, want.Requester)
	checkEqual(t, what+" data", got.Data, want.Data)
	checkEqual(t, what+" level", got.Level, want.Level)
	checkEqual(t, what+" status", got.Status, want.Status)
	checkEqual(t, what+" centre", got.Centre, want.Centre)
	checkBig(t, what+" deposit", got.Deposit, want.Deposit)
}

func revertText(reason string) string {
	return (&kyc.RevertError{Reason: reason}).Error()
}
