package conformance

import (
	"context"
	"math/big"
)

func paymentScenarios() []Scenario {
	return []Scenario{
		{
			Name:  "kyc/payments/withdraw_own",
			Title: "An account can withdraw the payments owed to it",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				l := t.KYC()
				owed := t.Payments(alice.Address())
				before := t.Balance(alice.Address())

				s := l.WithdrawPayments(alice, alice.Address())
				checkBig(t, "model payout", s.Out, owed)
				res := l.Do(s)

				want := new(big.Int).Add(before, owed)
				checkBig(t, "balance after withdrawal", t.Balance(alice.Address()), want.Sub(want, t.GasCost(res)))
				l.CheckPayments(alice.Address())
			},
		},
		{
			Name:  "kyc/payments/withdraw_for_other",
			Title: "Anyone can withdraw payments on behalf of a payee",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				bob := t.AccountWithKYCLevel(1)
				l := t.KYC()
				owed := t.Payments(bob.Address())
				aliceBefore := t.Balance(alice.Address())
				bobBefore := t.Balance(bob.Address())

				res := l.Do(l.WithdrawPayments(alice, bob.Address()))

				checkBig(t, "payee balance", t.Balance(bob.Address()), new(big.Int).Add(bobBefore, owed))
				checkBig(t, "caller balance", t.Balance(alice.Address()), new(big.Int).Sub(aliceBefore, t.GasCost(res)))
				l.CheckPayments(bob.Address())
			},
		},
		{
			Name:  "kyc/payments/withdraw_nothing",
			Title: "Withdrawing with nothing owed only costs gas",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				l := t.KYC()
				before := t.Balance(alice.Address())
				res := l.Do(l.WithdrawPayments(alice, alice.Address()))
				checkBig(t, "balance", t.Balance(alice.Address()), new(big.Int).Sub(before, t.GasCost(res)))
				l.CheckPayments(alice.Address())
			},
		},
		{
			Name:  "kyc/payments/view_nothing",
			Title: "A new account is owed nothing",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				checkBig(t, "payments", t.Payments(alice.Address()), new(big.Int))
			},
		},
		{
			Name:  "kyc/payments/view_owed",
			Title: "An approved requester is owed half of its deposit",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				t.KYC().CheckPayments(alice.Address())
			},
		},
		{
			Name:  "kyc/payments/several_requests",
			Title: "Payments accumulate over several approved requests",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 2, centre)))
				l.CheckPayments(alice.Address())
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:      "kyc/manage/set_level_price_by_admin",
			Title:     "The admin can set a level price",
			Exclusive: true,
			Run: func(t *T) {
				admin := t.env.Admin()
				l := t.KYC()
				old := l.Model().LevelPrice(1)
				restore := t.Build(t.env.set.KYC.BuildSetLevelPrice(1, old))
				t.Cleanup(func(ctx context.Context) error { return t.env.sendCleanup(ctx, admin, restore) })

				l.Do(l.SetLevelPrice(admin, 1, big.NewInt(999)))
				got, err := t.env.set.KYC.LevelPrice(t.ctx, nil, 1)
				if err != nil {
					t.Fatalf("levelPrice(1): %v", err)
				}
				checkBig(t, "level 1 price", got, l.Model().LevelPrice(1))
			},
		},
		{
			Name:  "kyc/manage/set_level_price_by_non_admin",
			Title: "Only the admin can set a level price",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				l := t.KYC()
				l.Reverts(l.SetLevelPrice(alice, 1, big.NewInt(999)), "")
				got, err := t.env.set.KYC.LevelPrice(t.ctx, nil, 1)
				if err != nil {
					t.Fatalf("levelPrice(1): %v", err)
				}
				checkBig(t, "level 1 price", got, l.Model().LevelPrice(1))
			},
		},
		{
			Name:  "kyc/view/level",
			Title: "The level view reports an approved level",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(2)
				checkEqual(t, "level", t.Level(alice.Address()), uint64(2))
				t.KYC().CheckLevel(alice.Address())
				checkEqual(t, "level of a new account", t.Level(t.RandomAccount().Address()), uint64(0))
			},
		},
	}
}
