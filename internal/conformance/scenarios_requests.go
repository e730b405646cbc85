package conformance

import (
	"math/big"

	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

func requestScenarios() []Scenario {
	return []Scenario{
		{
			Name:  "kyc/create/request",
			Title: "An active account can request a KYC level",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				l.Create(alice, 1)
				l.CheckRequest(alice.Address(), 0)
			},
		},
		{
			Name:  "kyc/create/after_approved_level",
			Title: "An account can request a higher level after its request was approved",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				l.CreateFor(alice, 2, centre)
				l.CheckRequest(alice.Address(), 1)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:  "kyc/create/overpayment_returned",
			Title: "The part of a deposit above the level price is returned",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				paid := new(big.Int).Add(l.Model().LevelPrice(1), big.NewInt(1000))
				before := t.Balance(alice.Address())
				s := l.CreateRequest(alice, 1, paid)
				res := l.Do(s)
				want := new(big.Int).Sub(before, paid)
				want.Add(want, s.Out)
				checkBig(t, "balance after request", t.Balance(alice.Address()), want.Sub(want, t.GasCost(res)))
				l.CheckRequest(alice.Address(), 0)
			},
		},
		{
			Name:  "kyc/create/any_greater_level",
			Title: "A level above the next one can be requested directly",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				l.Create(alice, 2)
				l.CheckRequest(alice.Address(), 0)
			},
		},
		{
			Name:  "kyc/create/owned_level",
			Title: "An account cannot request the level it already has",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				l := t.KYC()
				l.Reverts(l.CreateRequest(alice, 1, nil), kyc.ReasonHaveLevel)
			},
		},
		{
			Name:  "kyc/create/lesser_level",
			Title: "An account cannot request a level below the one it has",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				l := t.KYC()
				l.Reverts(l.CreateRequest(alice, 0, l.Model().LevelPrice(1)), kyc.ReasonHaveLevel)
			},
		},
		{
			Name:  "kyc/create/insufficient_deposit",
			Title: "A deposit below the level price reverts",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				price := l.Model().LevelPrice(1)
				if price.Sign() == 0 {
					t.Skipf("level 1 is free")
				}
				l.Reverts(l.CreateRequest(alice, 1, new(big.Int).Sub(price, big.NewInt(1))), kyc.ReasonNotEnoughEther)
			},
		},
		{
			Name:  "kyc/create/while_pending",
			Title: "An account cannot open a request while its previous one is pending",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				l.Create(alice, 1)
				l.Reverts(l.CreateRequest(alice, 1, nil), kyc.ReasonPending)
			},
		},
		{
			Name:      "kyc/create/without_centres",
			Title:     "A request cannot be opened while no KYC centre exists",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.DropCentre(t.KYCCentre())
				l := t.KYC()
				l.requireNoCentres()
				l.CheckCentres()
				l.Reverts(l.CreateRequest(alice, 1, nil), kyc.ReasonNoCentres)
			},
		},
		{
			Name:      "kyc/repair/centre_lost_role",
			Title:     "A pending request can be withdrawn once its centre lost the role",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.CreateFor(alice, 1, centre)
				t.DropCentre(centre)
				l.Do(l.RepairLostRequest(alice))
				l.CheckRequest(alice.Address(), 0)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:      "kyc/repair/deposit_refunded",
			Title:     "Withdrawing a lost request credits the deposit back to the requester",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.CreateFor(alice, 1, centre)
				t.DropCentre(centre)
				l.Do(l.RepairLostRequest(alice))
				l.CheckPayments(alice.Address())
				l.CheckPayments(centre.Address())
			},
		},
		{
			Name:  "kyc/repair/centre_active",
			Title: "A request cannot be withdrawn while its centre holds the role",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				l.Create(alice, 1)
				l.Reverts(l.RepairLostRequest(alice), kyc.ReasonCentreActive)
			},
		},
		{
			Name:      "kyc/repair/approved_request",
			Title:     "An approved request cannot be withdrawn",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				t.DropCentre(centre)
				l.Reverts(l.RepairLostRequest(alice), kyc.ReasonCannotRepair)
			},
		},
		{
			Name:      "kyc/repair/declined_request",
			Title:     "A declined request cannot be withdrawn",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.DeclineRequest(centre, l.CreateFor(alice, 1, centre)))
				t.DropCentre(centre)
				l.Reverts(l.RepairLostRequest(alice), kyc.ReasonCannotRepair)
			},
		},
		{
			Name:      "kyc/repair/withdrawn_request",
			Title:     "A withdrawn request cannot be withdrawn again",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.CreateFor(alice, 1, centre)
				t.DropCentre(centre)
				l.Do(l.RepairLostRequest(alice))
				l.Reverts(l.RepairLostRequest(alice), kyc.ReasonCannotRepair)
			},
		},
		{
			Name:  "kyc/view/own_request",
			Title: "An account can view its own request",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				l.Create(alice, 1)
				l.CheckRequest(alice.Address(), 0)
				checkBig(t, "deposit", t.MyRequest(alice.Address(), 0).Deposit, l.Model().LevelPrice(1))
			},
		},
		{
			Name:  "kyc/view/last_global_index",
			Title: "The last global request index of an account points at its newest request",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				idx := l.CreateFor(alice, 2, centre)
				checkEqual(t, "last global index", l.CheckLastIndex(alice.Address()), idx)
			},
		},
		{
			Name:      "kyc/view/request_assigned_to_centre",
			Title:     "A centre can view the requests assigned to it",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.DropCentre(t.KYCCentre())
				centre := t.NewKYCCentre()
				l := t.KYC()
				idx := l.Create(alice, 1)

				want, _, err := l.Model().CentreRequest(centre.Address(), 0)
				if err != nil {
					t.Fatalf("model has no request for %s: %v", centre.Address(), err)
				}
				got, gidx, err := t.env.set.KYC.ViewRequestAssignedToCentre(t.ctx, nil, centre.Address(), 0)
				if err != nil {
					t.Fatalf("viewRequestAssignedToCentre: %v", err)
				}
				checkRequest(t, "assigned request", got, want)
				checkEqual(t, "assigned request index", gidx, idx)
			},
		},
	}
}
