package conformance

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/policy"
)

// tenthEther is the value the transfer scenarios move.
var tenthEther = new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(10))

func filterScenarios() []Scenario {
	all := []Scenario{
		{
			Name:  "filter/send_by_default",
			Title: "An active account can send funds to an account without a filter",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				bob := t.RandomAccount()
				t.transfer(alice, bob.Address(), tenthEther, nil)
			},
		},
		{
			Name:  "filter/send_with_matching_level",
			Title: "An account whose KYC level equals the recipient's filter level can send funds",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				bob := t.AccountWithFilterLevel(1)
				t.transfer(alice, bob.Address(), tenthEther, nil)
			},
		},
		{
			Name:  "filter/send_with_higher_level",
			Title: "An account whose KYC level exceeds the recipient's filter level can send funds",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(2)
				bob := t.AccountWithFilterLevel(1)
				t.transfer(alice, bob.Address(), tenthEther, nil)
			},
		},
		{
			Name:  "filter/send_with_insufficient_level",
			Title: "An account below the recipient's filter level cannot send funds",
			Run: func(t *T) {
				alice := t.ActiveAccount()
				bob := t.AccountWithFilterLevel(1)
				t.transfer(alice, bob.Address(), tenthEther, policy.ErrKYCLevelTooLow)
			},
		},
		{
			Name:  "filter/view_own_level",
			Title: "An account can view its own filter level",
			Run: func(t *T) {
				alice := t.AccountWithFilterLevel(1)
				t.checkFilterLevel(alice.Address())
			},
		},
		{
			Name:  "filter/check_rejected",
			Title: "The filter view rejects a sender below the recipient's filter level",
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(1)
				bob := t.AccountWithFilterLevel(2)
				t.checkAllows(alice.Address(), bob.Address(), false)
			},
		},
	}
	for _, level := range []uint64{0, 1} {
		all = append(all, Scenario{
			Name:  fmt.Sprintf("filter/set_level/%d", level),
			Title: fmt.Sprintf("An account can set its filter level to %d", level),
			Run: func(t *T) {
				alice := t.ActiveAccount()
				t.SetFilterLevel(alice, level)
				t.checkFilterLevel(alice.Address())
			},
		})
	}
	for _, level := range []uint64{1, 2} {
		all = append(all, Scenario{
			Name:  fmt.Sprintf("filter/check_not_rejected/%d", level),
			Title: fmt.Sprintf("The filter view admits a level %d sender to a level 1 recipient", level),
			Run: func(t *T) {
				alice := t.AccountWithKYCLevel(level)
				bob := t.AccountWithFilterLevel(1)
				t.checkAllows(alice.Address(), bob.Address(), true)
			},
		})
	}
	return all
}

// transfer sends value from one account to another. want is the refusal the scenario expects;
// the gate model must agree with it before anything is sent.
func (t *T) transfer(from eth.Signer, to common.Address, value *big.Int, want error) {
	what := fmt.Sprintf("transfer %s -> %s", from.Address(), to)
	if predicted := t.Gate().Check(from.Address(), to); predicted != want {
		t.Fatalf("%s: model predicts %v, want %v", what, predicted, want)
	}
	req := eth.TxRequest{To: &to, Value: value}
	if want != nil {
		t.ExpectRefused(what, from, req, want.Error())
		return
	}
	before := t.Balance(to)
	t.MustSend(what, from, req)
	checkBig(t, "recipient balance", t.Balance(to), new(big.Int).Add(before, value))
}

func (t *T) checkFilterLevel(account common.Address) {
	lvl, err := t.env.set.Filter.ViewFilterLevel(t.ctx, contracts.From(account))
	if err != nil {
		t.Fatalf("viewFilterLevel as %s: %v", account, err)
	}
	checkEqual(t, "filter level of "+account.Hex(), lvl, t.Gate().FilterLevel(account))
}

func (t *T) checkAllows(sender, recipient common.Address, want bool) {
	if got := t.Gate().Allows(sender, recipient); got != want {
		t.Fatalf("filter(%s, %s): model predicts %v, want %v", sender, recipient, got, want)
	}
	ok, err := t.env.set.Filter.Allows(t.ctx, nil, sender, recipient)
	if err != nil {
		t.Fatalf("filter(%s, %s): %v", sender, recipient, err)
	}
	checkEqual(t, fmt.Sprintf("filter(%s, %s)", sender, recipient), ok, want)
}
