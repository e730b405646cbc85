package conformance

import (
	"context"
	"fmt"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/policy"
)

// RandomAccount generates a key and funds it from alpha.
func (t *T) RandomAccount() eth.Signer {
	s, err := eth.GenerateLocalSigner()
	if err != nil {
		t.Fatalf("generate account: %v", err)
	}
	to := s.Address()
	t.MustSend("fund "+to.Hex(), t.env.Alpha(), eth.TxRequest{To: &to, Value: t.env.Funding()})
	t.Logf("account %s funded", to)
	return s
}

// ActiveAccount is a funded account that has paid the activation fee.
func (t *T) ActiveAccount() eth.Signer {
	s := t.RandomAccount()
	t.Activate(s)
	return s
}

// Activate pays the current activation fee for s unless it already has.
func (t *T) Activate(s eth.Signer) {
	fee := t.env.set.Fee
	addr := s.Address()
	paid, err := fee.PaidFee(t.ctx, nil, addr)
	if err != nil {
		t.Fatalf("paidFee(%s): %v", addr, err)
	}
	model := t.FeeModel()
	price := model.InitialFee()
	if _, err := model.Pay(addr, price); err != nil {
		t.Fatalf("model pay: %v", err)
	}
	if paid {
		return
	}
	t.MustSend("activate "+addr.Hex(), s, t.Build(fee.BuildPay(price)))
}

// KYCCentre returns the long-lived centre, activated and holding the centre role.
func (t *T) KYCCentre() eth.Signer {
	c := t.env.Centre()
	t.Activate(c)
	l := t.KYC()

	t.env.centreMu.Lock()
	defer t.env.centreMu.Unlock()
	if t.IsCentre(c.Address()) {
		l.observeCentre(c.Address())
		return c
	}
	l.Do(l.GrantCentre(t.env.Admin(), c.Address()))
	return c
}

// NewKYCCentre makes a fresh active account a centre. It renounces the role after the scenario.
func (t *T) NewKYCCentre() eth.Signer {
	c := t.ActiveAccount()
	l := t.KYC()
	l.Do(l.GrantCentre(t.env.Admin(), c.Address()))
	renounce := t.Build(t.env.set.KYC.BuildRenounceRole(contracts.KYCCentreRole, c.Address()))
	t.Cleanup(func(ctx context.Context) error { return t.env.sendCleanup(ctx, c, renounce) })
	return c
}

// DropCentre makes centre renounce its role for the rest of the scenario.
func (t *T) DropCentre(centre eth.Signer) {
	l := t.KYC()
	l.Do(l.RenounceCentre(centre, centre.Address()))
	if centre.Address() == t.env.Centre().Address() {
		t.restoreCentre()
	}
}

// restoreCentre grants the long-lived centre its role back after the scenario.
func (t *T) restoreCentre() {
	if t.centreRestored {
		return
	}
	t.centreRestored = true
	grant := t.Build(t.env.set.KYC.BuildGrantRole(contracts.KYCCentreRole, t.env.Centre().Address()))
	t.Cleanup(func(ctx context.Context) error { return t.env.sendCleanup(ctx, t.env.Admin(), grant) })
}

// AccountWithKYCLevel is an active account whose request for level the long-lived centre approved.
func (t *T) AccountWithKYCLevel(level uint64) eth.Signer {
	a := t.ActiveAccount()
	c := t.KYCCentre()
	l := t.KYC()
	idx := l.CreateFor(a, level, c)
	l.Do(l.ApproveRequest(c, idx))
	return a
}

// AccountWithFilterLevel is an active account that set its own filter level.
func (t *T) AccountWithFilterLevel(level uint64) eth.Signer {
	a := t.ActiveAccount()
	t.SetFilterLevel(a, level)
	return a
}

func (t *T) SetFilterLevel(s eth.Signer, level uint64) {
	t.MustSend(fmt.Sprintf("setFilterLevel(%d)", level), s, t.Build(t.env.set.Filter.BuildSetFilterLevel(level)))
	t.Gate().SetFilterLevel(s.Address(), level)
}

// FeeModel returns the scenario's activation fee model, seeded from the live contract.
func (t *T) FeeModel() *policy.Fee {
	if t.fee != nil {
		return t.fee
	}
	fee, err := t.env.set.Fee.InitialFee(t.ctx, nil)
	if err != nil {
		t.Fatalf("initialFee: %v", err)
	}
	owner, err := t.env.set.Fee.Owner(t.ctx, nil)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	t.fee = policy.NewFee(owner, fee)
	return t.fee
}

// Gate predicts transfer admission from the scenario's fee and KYC models.
func (t *T) Gate() *policy.Gate {
	if t.gate == nil {
		t.gate = policy.NewGate(t.FeeModel(), t.KYC().Model())
	}
	return t.gate
}

// sendCleanup submits a teardown transaction. It must not use T's fatal helpers.
func (e *Env) sendCleanup(ctx context.Context, from eth.Signer, req eth.TxRequest) error {
	res, err := e.Send(ctx, from, req)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("tx %s from %s reverted: %s", res.TxHash, from.Address(), e.RevertReason(ctx, from.Address(), req, res))
	}
	return nil
}
