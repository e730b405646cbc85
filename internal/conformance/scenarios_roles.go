package conformance

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

func roleScenarios() []Scenario {
	return []Scenario{
		{
			Name:      "kyc/roles/grant_by_admin",
			Title:     "The admin can grant the centre role",
			Exclusive: true,
			Run: func(t *T) {
				c := t.NewKYCCentre()
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), true)
				t.KYC().CheckCentres()
			},
		},
		{
			Name:  "kyc/roles/grant_by_non_admin",
			Title: "Only the admin can grant the centre role",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				bob := t.RandomAccount()
				l := t.KYC()
				l.Reverts(l.GrantCentre(alice, bob.Address()), kyc.MissingRoleReason(alice.Address(), kyc.AdminRole))
				checkEqual(t, "hasRole", t.IsCentre(bob.Address()), false)
			},
		},
		{
			Name:      "kyc/roles/revoke_by_admin",
			Title:     "The admin can revoke the centre role",
			Exclusive: true,
			Run: func(t *T) {
				c := t.KYCCentre()
				l := t.KYC()
				t.restoreCentre()
				l.Do(l.RevokeCentre(t.env.Admin(), c.Address()))
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), false)
				l.CheckCentres()
			},
		},
		{
			Name:  "kyc/roles/revoke_by_non_admin",
			Title: "Only the admin can revoke the centre role",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				c := t.KYCCentre()
				l := t.KYC()
				l.Reverts(l.RevokeCentre(alice, c.Address()), kyc.MissingRoleReason(alice.Address(), kyc.AdminRole))
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), true)
			},
		},
		{
			Name:      "kyc/roles/renounce_for_self",
			Title:     "A centre can renounce its own role",
			Exclusive: true,
			Run: func(t *T) {
				c := t.KYCCentre()
				t.DropCentre(c)
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), false)
				t.KYC().CheckCentres()
			},
		},
		{
			Name:  "kyc/roles/renounce_for_another",
			Title: "Nobody can renounce the role of another account",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				c := t.KYCCentre()
				l := t.KYC()
				l.Reverts(l.RenounceCentre(alice, c.Address()), kyc.ReasonRenounceSelf)
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), true)
			},
		},
		{
			Name:  "kyc/roles/admin_role",
			Title: "The centre role is administered by the default admin role",
			Run: func(t *T) {
				got, err := t.env.set.KYC.RoleAdmin(t.ctx, nil, contracts.KYCCentreRole)
				if err != nil {
					t.Fatalf("getRoleAdmin: %v", err)
				}
				checkEqual(t, "role admin", got, t.KYC().Model().RoleAdmin(kyc.CentreRole))
			},
		},
		{
			Name:      "kyc/roles/member_count",
			Title:     "The centre role member count follows grants",
			Exclusive: true,
			Run: func(t *T) {
				t.KYCCentre()
				t.NewKYCCentre()
				l := t.KYC()
				t.checkCentreCount()
				l.CheckCentres()
			},
		},
		{
			Name:      "kyc/roles/member_count_without_centres",
			Title:     "The centre role member count is zero once every centre left",
			Exclusive: true,
			Run: func(t *T) {
				t.DropCentre(t.KYCCentre())
				t.KYC().requireNoCentres()
				t.checkCentreCount()
			},
		},
		{
			Name:      "kyc/roles/member_by_index",
			Title:     "Centre role members can be enumerated by index",
			Exclusive: true,
			Run: func(t *T) {
				c := t.KYCCentre()
				other := t.NewKYCCentre()
				l := t.KYC()
				for _, want := range []common.Address{c.Address(), other.Address()} {
					found := false
					n := l.Model().RoleMemberCount(kyc.CentreRole)
					for i := uint64(0); i < n; i++ {
						got, err := t.env.set.KYC.RoleMember(t.ctx, nil, contracts.KYCCentreRole, i)
						if err != nil {
							t.Fatalf("getRoleMember(%d): %v", i, err)
						}
						if got == want {
							found = true
							break
						}
					}
					if !found {
						t.Errorf("centre %s not enumerated", want)
					}
				}
				l.CheckCentres()
			},
		},
		{
			Name:  "kyc/roles/member_past_end",
			Title: "Reading a centre role member past the end reverts",
			Run: func(t *T) {
				t.KYCCentre()
				n, err := t.env.set.KYC.RoleMemberCount(t.ctx, nil, contracts.KYCCentreRole)
				if err != nil {
					t.Fatalf("getRoleMemberCount: %v", err)
				}
				t.expectMemberRevert(n)
			},
		},
		{
			Name:      "kyc/roles/member_without_centres",
			Title:     "Reading a centre role member reverts once every centre left",
			Exclusive: true,
			Run: func(t *T) {
				t.DropCentre(t.KYCCentre())
				t.KYC().requireNoCentres()
				t.expectMemberRevert(0)
			},
		},
		{
			Name:  "kyc/roles/has_role",
			Title: "A centre holds the centre role",
			Run: func(t *T) {
				c := t.KYCCentre()
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), t.KYC().Model().HasRole(kyc.CentreRole, c.Address()))
			},
		},
		{
			Name:      "kyc/roles/has_no_role",
			Title:     "A former centre no longer holds the centre role",
			Exclusive: true,
			Run: func(t *T) {
				c := t.KYCCentre()
				t.DropCentre(c)
				checkEqual(t, "hasRole", t.IsCentre(c.Address()), t.KYC().Model().HasRole(kyc.CentreRole, c.Address()))
			},
		},
	}
}

func (t *T) checkCentreCount() {
	got, err := t.env.set.KYC.RoleMemberCount(t.ctx, nil, contracts.KYCCentreRole)
	if err != nil {
		t.Fatalf("getRoleMemberCount: %v", err)
	}
	checkEqual(t, "centre count", got, t.KYC().Model().RoleMemberCount(kyc.CentreRole))
}

// expectMemberRevert reads the i-th centre and requires a revert without message.
func (t *T) expectMemberRevert(i uint64) {
	if _, err := t.KYC().Model().RoleMember(kyc.CentreRole, i); err == nil {
		t.Fatalf("model has a centre at %d", i)
	}
	_, err := t.env.set.KYC.RoleMember(t.ctx, nil, contracts.KYCCentreRole, i)
	t.expectRejection(fmt.Sprintf("getRoleMember(%d)", i), err, revertText(""), false)
}
