package conformance

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

// Ledger runs KYC operations against the chain and the reference model side by side. Every
// operation is first applied to the model; Do then requires the chain to succeed where the model
// did, and Reverts requires both to fail with the same reason.
//
// Chain request indices are global across the chain's history while model indices start at zero,
// so the ledger keeps a mapping between them.
type Ledger struct {
	t *T
	k *contracts.KYC
	m *kyc.Model

	idx            map[uint64]uint64
	lastChainIndex uint64
	// base holds payments owed to pre-existing accounts when the ledger was seeded.
	base map[common.Address]*big.Int
}

// Step is an operation the model has already judged.
type Step struct {
	What      string
	From      eth.Signer
	Req       eth.TxRequest
	Predicted error

	// Out is the model's value result: change refunded by a create, or the amount paid out by a
	// payments withdrawal.
	Out *big.Int

	settle func(res eth.SendResult)
}

// KYC returns the scenario's ledger, seeding the model from live prices and role members on
// first use.
func (t *T) KYC() *Ledger {
	if t.ledger != nil {
		return t.ledger
	}
	prices, err := t.env.LevelPrices(t.ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	centres, err := t.env.Centres(t.ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	l := &Ledger{
		t: t,
		k: t.env.set.KYC,
		m: kyc.NewModel(kyc.ModelConfig{
			Admins:  []common.Address{t.env.Admin().Address()},
			Centres: centres,
			Price: func(level uint64) *big.Int {
				if p, ok := prices[level]; ok {
					return p
				}
				return kyc.DefaultPrice(level)
			},
		}),
		idx:  make(map[uint64]uint64),
		base: make(map[common.Address]*big.Int),
	}
	for _, c := range centres {
		l.base[c] = t.Payments(c)
	}
	t.ledger = l
	return l
}

func (l *Ledger) Model() *kyc.Model { return l.m }

// Do sends a step the model predicts to succeed and requires it to be mined with status 1.
func (l *Ledger) Do(s Step) eth.SendResult {
	if s.Predicted != nil {
		l.t.Fatalf("%s: model predicts %q", s.What, s.Predicted)
	}
	res := l.t.MustSend(s.What, s.From, s.Req)
	if s.settle != nil {
		s.settle(res)
	}
	return res
}

// Reverts checks that both the model and the node reject the step with reason. An empty reason
// is a revert without message.
func (l *Ledger) Reverts(s Step, reason string) {
	want := revertText(reason)
	switch {
	case s.Predicted == nil:
		l.t.Fatalf("%s: model predicts success, want %q", s.What, want)
	case !kyc.IsRevert(s.Predicted, reason):
		l.t.Fatalf("%s: model predicts %q, want %q", s.What, s.Predicted, want)
	}
	fold := strings.HasPrefix(reason, "AccessControl: account ")
	l.t.expectRejection(s.What, l.t.env.Simulate(l.t.ctx, s.From.Address(), s.Req), want, fold)
}

// Create opens a request at the live price and returns its chain index.
func (l *Ledger) Create(requester eth.Signer, level uint64) uint64 {
	l.Do(l.CreateRequest(requester, level, nil))
	return l.lastChainIndex
}

// CreateFor opens a request like Create and skips the scenario when the node assigned it to a
// centre other than centre. That only happens when centres the suite does not control hold the
// role.
func (l *Ledger) CreateFor(requester eth.Signer, level uint64, centre eth.Signer) uint64 {
	idx := l.Create(requester, level)
	reason, err := assignedElsewhere(l.m, l.modelIndex(idx), centre.Address())
	if err != nil {
		l.t.Fatalf("request %d: %v", idx, err)
	}
	if reason != "" {
		l.t.Skipf("request %d %s", idx, reason)
	}
	return idx
}

// assignedElsewhere explains why the model's request at modelIdx is not assigned to centre, or
// returns "" when it is.
func assignedElsewhere(m *kyc.Model, modelIdx uint64, centre common.Address) (string, error) {
	req, err := m.Request(modelIdx)
	if err != nil {
		return "", err
	}
	if req.Centre == centre {
		return "", nil
	}
	return fmt.Sprintf("was assigned to %s, not to %s", req.Centre, centre), nil
}

// requireNoCentres skips the scenario unless the centre role has no members left, which fails to
// hold when centres the suite does not control exist.
func (l *Ledger) requireNoCentres() {
	if reason := remainingCentres(l.m); reason != "" {
		l.t.Skipf("%s", reason)
	}
}

func remainingCentres(m *kyc.Model) string {
	if n := m.RoleMemberCount(kyc.CentreRole); n != 0 {
		return fmt.Sprintf("%d other centres hold the role", n)
	}
	return ""
}

// CreateRequest builds createKYCRequest(level, data) paying deposit, where data commits to a
// document unique to the scenario, requester and request. A nil deposit pays the price.
func (l *Ledger) CreateRequest(requester eth.Signer, level uint64, deposit *big.Int) Step {
	if deposit == nil {
		deposit = l.m.LevelPrice(level)
	}
	user := requester.Address()
	data := kyc.DataHash(requestDocument(l.t.name, user, l.t.requests[user]))
	modelIdx, change, err := l.m.Create(user, level, data, deposit)
	return Step{
		What:      fmt.Sprintf("createKYCRequest(%d) by %s", level, user),
		From:      requester,
		Req:       l.t.Build(l.k.BuildCreateRequest(level, data, deposit)),
		Predicted: err,
		Out:       change,
		settle: func(eth.SendResult) {
			local := l.t.requests[user]
			chainIdx, err := l.k.UserRequestIndex(l.t.ctx, nil, user, local)
			if err != nil {
				l.t.Fatalf("userKYCRequests(%s, %d): %v", user, local, err)
			}
			l.t.requests[user] = local + 1
			l.idx[chainIdx] = modelIdx
			l.lastChainIndex = chainIdx
			if l.m.RoleMemberCount(kyc.CentreRole) > 1 {
				l.adoptAssignment(user, local, modelIdx)
			}
		},
	}
}

func (l *Ledger) ApproveRequest(centre eth.Signer, chainIdx uint64) Step {
	return Step{
		What:      fmt.Sprintf("approveKYCRequest(%d) by %s", chainIdx, centre.Address()),
		From:      centre,
		Req:       l.t.Build(l.k.BuildApprove(chainIdx)),
		Predicted: l.m.Approve(centre.Address(), l.modelIndex(chainIdx)),
	}
}

func (l *Ledger) DeclineRequest(centre eth.Signer, chainIdx uint64) Step {
	return Step{
		What:      fmt.Sprintf("declineRequest(%d) by %s", chainIdx, centre.Address()),
		From:      centre,
		Req:       l.t.Build(l.k.BuildDecline(chainIdx)),
		Predicted: l.m.Decline(centre.Address(), l.modelIndex(chainIdx)),
	}
}

func (l *Ledger) RepairLostRequest(requester eth.Signer) Step {
	_, err := l.m.Withdraw(requester.Address())
	return Step{
		What:      "repairLostRequest by " + requester.Address().Hex(),
		From:      requester,
		Req:       l.t.Build(l.k.BuildRepairLostRequest()),
		Predicted: err,
	}
}

func (l *Ledger) DecreaseLevel(centre eth.Signer, user common.Address, level uint64) Step {
	return Step{
		What:      fmt.Sprintf("decreaseKYCLevel(%s, %d) by %s", user, level, centre.Address()),
		From:      centre,
		Req:       l.t.Build(l.k.BuildDecreaseLevel(user, level)),
		Predicted: l.m.DecreaseLevel(centre.Address(), user, level),
	}
}

func (l *Ledger) SetLevelPrice(caller eth.Signer, level uint64, price *big.Int) Step {
	return Step{
		What:      fmt.Sprintf("setLevelPrice(%d, %s) by %s", level, price, caller.Address()),
		From:      caller,
		Req:       l.t.Build(l.k.BuildSetLevelPrice(level, price)),
		Predicted: l.m.SetLevelPrice(caller.Address(), level, price),
	}
}

// WithdrawPayments predicts the payout from the model, which only knows what the scenario itself
// credited. Use it for payees the scenario created.
func (l *Ledger) WithdrawPayments(caller eth.Signer, payee common.Address) Step {
	return Step{
		What:   fmt.Sprintf("withdrawPayments(%s) by %s", payee, caller.Address()),
		From:   caller,
		Req:    l.t.Build(l.k.BuildWithdrawPayments(payee)),
		Out:    l.m.WithdrawPayments(payee),
		settle: func(eth.SendResult) { delete(l.base, payee) },
	}
}

func (l *Ledger) GrantCentre(caller eth.Signer, account common.Address) Step {
	return Step{
		What:      fmt.Sprintf("grantRole(centre, %s) by %s", account, caller.Address()),
		From:      caller,
		Req:       l.t.Build(l.k.BuildGrantRole(contracts.KYCCentreRole, account)),
		Predicted: l.m.Grant(caller.Address(), kyc.CentreRole, account),
		settle:    func(eth.SendResult) { l.track(account) },
	}
}

func (l *Ledger) RevokeCentre(caller eth.Signer, account common.Address) Step {
	return Step{
		What:      fmt.Sprintf("revokeRole(centre, %s) by %s", account, caller.Address()),
		From:      caller,
		Req:       l.t.Build(l.k.BuildRevokeRole(contracts.KYCCentreRole, account)),
		Predicted: l.m.Revoke(caller.Address(), kyc.CentreRole, account),
	}
}

func (l *Ledger) RenounceCentre(caller eth.Signer, account common.Address) Step {
	return Step{
		What:      fmt.Sprintf("renounceRole(centre, %s) by %s", account, caller.Address()),
		From:      caller,
		Req:       l.t.Build(l.k.BuildRenounceRole(contracts.KYCCentreRole, account)),
		Predicted: l.m.Renounce(caller.Address(), kyc.CentreRole, account),
	}
}

// adoptAssignment takes the centre the node assigned a new request to. Rotation is only
// predictable with a single centre.
func (l *Ledger) adoptAssignment(user common.Address, local, modelIdx uint64) {
	got := l.t.MyRequest(user, local)
	if err := l.m.Reassign(modelIdx, got.Centre); err != nil {
		l.t.Fatalf("request %d of %s assigned to %s: %v", local, user, got.Centre, err)
	}
}

// observeCentre records in the model a centre that gained its role outside this ledger.
func (l *Ledger) observeCentre(account common.Address) {
	if l.m.HasRole(kyc.CentreRole, account) {
		return
	}
	if err := l.m.Grant(l.t.env.Admin().Address(), kyc.CentreRole, account); err != nil {
		l.t.Fatalf("model grant %s: %v", account, err)
	}
	l.track(account)
}

func (l *Ledger) track(account common.Address) {
	if _, ok := l.base[account]; !ok {
		l.base[account] = l.t.Payments(account)
	}
}

// modelIndex maps a chain index to the model. Requests created outside the ledger map past the
// end of the model so it judges them as unknown.
func (l *Ledger) modelIndex(chainIdx uint64) uint64 {
	if i, ok := l.idx[chainIdx]; ok {
		return i
	}
	return math.MaxUint64
}

// CheckRequest compares requester's local-th request on chain with the model.
func (l *Ledger) CheckRequest(requester common.Address, local uint64) {
	want, err := l.m.UserRequest(requester, local)
	if err != nil {
		l.t.Fatalf("model has no request %d of %s", local, requester)
	}
	what := fmt.Sprintf("request %d of %s", local, requester)
	got := l.t.MyRequest(requester, local)
	if got.Data == (common.Hash{}) {
		l.t.Errorf("%s: data is the zero hash, want the document hash %s", what, want.Data)
	}
	checkRequest(l.t, what, got, want)
}

// requestDocument is the KYC document a scenario submits for requester's local-th request.
func requestDocument(scenario string, requester common.Address, local uint64) []byte {
	return []byte(fmt.Sprintf(`{"scenario":%q,"requester":%q,"request":%d}`, scenario, requester.Hex(), local))
}

// CheckLastIndex compares user's last global request index on chain with the model's newest
// request for user.
func (l *Ledger) CheckLastIndex(user common.Address) uint64 {
	want, err := l.m.LastRequestIndex(user)
	if err != nil {
		l.t.Fatalf("model has no request of %s", user)
	}
	got, err := l.k.LastGlobalRequestIndex(l.t.ctx, nil, user)
	if err != nil {
		l.t.Fatalf("lastGlobalRequestIndex: %v", err)
	}
	if l.modelIndex(got) != want {
		l.t.Errorf("last global index of %s: chain %d maps to model %d, want model %d", user, got, l.modelIndex(got), want)
	}
	return got
}

func (l *Ledger) CheckLevel(user common.Address) {
	checkEqual(l.t, "level of "+user.Hex(), l.t.Level(user), l.m.Level(user))
}

// CheckPayments compares what the contract owes payee, less any balance that predates the
// scenario, with the model.
func (l *Ledger) CheckPayments(payee common.Address) {
	got := l.t.Payments(payee)
	if b, ok := l.base[payee]; ok {
		got = new(big.Int).Sub(got, b)
	}
	checkBig(l.t, "payments of "+payee.Hex(), got, l.m.Payments(payee))
}

// CheckCentres compares the centre role members on chain with the model, in order.
func (l *Ledger) CheckCentres() {
	got, err := l.t.env.Centres(l.t.ctx)
	if err != nil {
		l.t.Fatalf("%v", err)
	}
	n := l.m.RoleMemberCount(kyc.CentreRole)
	checkEqual(l.t, "centre count", uint64(len(got)), n)
	for i := uint64(0); i < n && i < uint64(len(got)); i++ {
		want, _ := l.m.RoleMember(kyc.CentreRole, i)
		checkEqual(l.t, fmt.Sprintf("centre %d", i), got[i], want)
	}
}
