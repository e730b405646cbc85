package conformance

import (
	"fmt"

	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

func decisionScenarios() []Scenario {
	all := []Scenario{
		{
			Name:  "kyc/approve/by_assigned_centre",
			Title: "The assigned centre can approve a pending request",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				l.CheckRequest(alice.Address(), 0)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:      "kyc/approve/deposit_split",
			Title:     "Approval splits the deposit between the requester and the centre",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.ApproveRequest(centre, l.CreateFor(alice, 1, centre)))
				l.CheckPayments(alice.Address())
				l.CheckPayments(centre.Address())
			},
		},
		{
			Name:      "kyc/approve/by_former_centre",
			Title:     "A centre that lost its role cannot approve",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				t.DropCentre(centre)
				l.Reverts(l.ApproveRequest(centre, idx), kyc.ReasonNotAllowedApprove)
			},
		},
		{
			Name:      "kyc/approve/by_other_centre",
			Title:     "A centre cannot approve a request assigned to another centre",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				idx := l.Create(alice, 1)
				other := t.NewKYCCentre()
				l.Reverts(l.ApproveRequest(other, idx), "")
				l.CheckRequest(alice.Address(), 0)
			},
		},
		{
			Name:  "kyc/approve/approved_request",
			Title: "An approved request cannot be approved again",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				l.Do(l.ApproveRequest(centre, idx))
				l.Reverts(l.ApproveRequest(centre, idx), kyc.ReasonNotPending)
			},
		},
		{
			Name:  "kyc/approve/declined_request",
			Title: "A declined request cannot be approved",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				l.Do(l.DeclineRequest(centre, idx))
				l.Reverts(l.ApproveRequest(centre, idx), kyc.ReasonNotPending)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:      "kyc/approve/withdrawn_request",
			Title:     "A withdrawn request cannot be approved",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				l := t.KYC()
				idx := t.withdrawnRequest(alice)
				l.Reverts(l.ApproveRequest(t.KYCCentre(), idx), kyc.ReasonNotPending)
			},
		},
		{
			Name:  "kyc/decline/by_assigned_centre",
			Title: "The assigned centre can decline a pending request",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.DeclineRequest(centre, l.CreateFor(alice, 1, centre)))
				l.CheckRequest(alice.Address(), 0)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:      "kyc/decline/deposit_to_centre",
			Title:     "Declining credits the whole deposit to the centre",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				l.Do(l.DeclineRequest(centre, l.CreateFor(alice, 1, centre)))
				l.CheckPayments(centre.Address())
				l.CheckPayments(alice.Address())
			},
		},
		{
			Name:  "kyc/decline/approved_request",
			Title: "An approved request cannot be declined",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				l.Do(l.ApproveRequest(centre, idx))
				l.Reverts(l.DeclineRequest(centre, idx), kyc.ReasonNotPending)
				l.CheckLevel(alice.Address())
			},
		},
		{
			Name:  "kyc/decline/declined_request",
			Title: "A declined request cannot be declined again",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				l.Do(l.DeclineRequest(centre, idx))
				l.Reverts(l.DeclineRequest(centre, idx), kyc.ReasonNotPending)
			},
		},
		{
			Name:      "kyc/decline/withdrawn_request",
			Title:     "A withdrawn request cannot be declined",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				l := t.KYC()
				idx := t.withdrawnRequest(alice)
				l.Reverts(l.DeclineRequest(t.KYCCentre(), idx), kyc.ReasonNotPending)
			},
		},
		{
			Name:      "kyc/decline/by_former_centre",
			Title:     "A centre that lost its role cannot decline",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				centre := t.KYCCentre()
				l := t.KYC()
				idx := l.CreateFor(alice, 1, centre)
				t.DropCentre(centre)
				l.Reverts(l.DeclineRequest(centre, idx), kyc.ReasonNotAllowedDecline)
			},
		},
		{
			Name:      "kyc/decline/by_other_centre",
			Title:     "A centre cannot decline a request assigned to another centre",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.KYCCentre()
				l := t.KYC()
				idx := l.Create(alice, 1)
				other := t.NewKYCCentre()
				l.Reverts(l.DeclineRequest(other, idx), "")
				l.CheckRequest(alice.Address(), 0)
			},
		},
		{
			Name:      "kyc/level/decrease_by_former_centre",
			Title:     "A centre that lost its role cannot decrease levels",
			Exclusive: true,
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(2)
				centre := t.KYCCentre()
				t.DropCentre(centre)
				l := t.KYC()
				l.Reverts(l.DecreaseLevel(centre, alice.Address(), 1), kyc.ReasonNotAllowedSet)
				l.CheckLevel(alice.Address())
			},
		},
	}
	for _, level := range []uint64{1, 0} {
		all = append(all, Scenario{
			Name:      fmt.Sprintf("kyc/level/decrease_by_any_centre/%d", level),
			Title:     fmt.Sprintf("Any centre can decrease a level 2 account to %d", level),
			Exclusive: true,
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(2)
				other := t.NewKYCCentre()
				l := t.KYC()
				l.Do(l.DecreaseLevel(other, alice.Address(), level))
				l.CheckLevel(alice.Address())
			},
		})
	}
	for _, level := range []uint64{1, 2} {
		all = append(all, Scenario{
			Name:  fmt.Sprintf("kyc/level/no_increase/%d", level),
			Title: fmt.Sprintf("A level 1 account cannot be set to %d through a decrease", level),
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				l := t.KYC()
				l.Reverts(l.DecreaseLevel(t.KYCCentre(), alice.Address(), level), kyc.ReasonOnlyDecrease)
				l.CheckLevel(alice.Address())
			},
		})
	}
	return all
}

// withdrawnRequest leaves requester with a withdrawn request and the long-lived centre back in
// its role. It returns the request's chain index.
func (t *T) withdrawnRequest(requester eth.Signer) uint64 {
	centre := t.KYCCentre()
	l := t.KYC()
	idx := l.CreateFor(requester, 1, centre)
	t.DropCentre(centre)
	l.Do(l.RepairLostRequest(requester))

	t.env.centreMu.Lock()
	defer t.env.centreMu.Unlock()
	l.Do(l.GrantCentre(t.env.Admin(), centre.Address()))
	return idx
}
