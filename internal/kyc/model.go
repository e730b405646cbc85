package kyc

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// CentreRole is the role id of accounts that may adjudicate requests.
	CentreRole = common.HexToHash("0x79fce87046aae5e678100c84cc5c4708df4209fab036250bb81408ada9b857ef")

	// AdminRole is the AccessControl default admin role and the admin of every other role.
	AdminRole = common.Hash{}
)

var ErrInvalidInput = errors.New("kyc: invalid input")

// PriceFunc returns the deposit required for a level.
type PriceFunc func(level uint64) *big.Int

// DefaultPrice is the level*1000 wei table the suite assumes when live prices are unavailable.
func DefaultPrice(level uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(level), big.NewInt(1000))
}

// Model is an in-memory reference of the KYC contract. It predicts the outcome of each
// operation, including the revert a node would report, so scenarios can assert observed chain
// state against it.
//
// Model is safe for concurrent use.
type Model struct {
	mu sync.Mutex

	roles   map[common.Hash]*memberSet
	levels  map[common.Address]uint64
	prices  map[uint64]*big.Int
	price   PriceFunc
	payable map[common.Address]*big.Int

	requests []Request
	escrow   []*big.Int
	byUser   map[common.Address][]uint64
	byCentre map[common.Address][]uint64

	// assignments rotate over the current centre set.
	cursor int
}

type ModelConfig struct {
	// Admins hold AdminRole from the start.
	Admins []common.Address
	// Centres hold CentreRole from the start, in this order.
	Centres []common.Address
	// Price is consulted for levels without an explicit SetLevelPrice. Defaults to DefaultPrice.
	Price PriceFunc
}

func NewModel(cfg ModelConfig) *Model {
	m := &Model{
		roles:    make(map[common.Hash]*memberSet),
		levels:   make(map[common.Address]uint64),
		prices:   make(map[uint64]*big.Int),
		price:    cfg.Price,
		payable:  make(map[common.Address]*big.Int),
		byUser:   make(map[common.Address][]uint64),
		byCentre: make(map[common.Address][]uint64),
	}
	if m.price == nil {
		m.price = DefaultPrice
	}
	for _, a := range cfg.Admins {
		m.members(AdminRole).add(a)
	}
	for _, c := range cfg.Centres {
		m.members(CentreRole).add(c)
	}
	return m
}

// LevelPrice returns the deposit required to request level.
func (m *Model) LevelPrice(level uint64) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.levelPrice(level))
}

func (m *Model) levelPrice(level uint64) *big.Int {
	if p, ok := m.prices[level]; ok {
		return p
	}
	return m.price(level)
}

// SetLevelPrice changes the deposit for level. Only admins may do so; others get a bare revert.
func (m *Model) SetLevelPrice(caller common.Address, level uint64, price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.members(AdminRole).has(caller) {
		return bare()
	}
	m.prices[level] = new(big.Int).Set(price)
	return nil
}

// Create opens a request for requester. It returns the global request index and the change
// refunded from an overpaid deposit.
func (m *Model) Create(requester common.Address, level uint64, data common.Hash, deposit *big.Int) (uint64, *big.Int, error) {
	if deposit == nil {
		deposit = new(big.Int)
	}
	if deposit.Sign() < 0 {
		return 0, nil, fmt.Errorf("%w: negative deposit", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	centres := m.members(CentreRole)
	if centres.len() == 0 {
		return 0, nil, revert(ReasonNoCentres)
	}
	if last, ok := m.lastOf(requester); ok && m.requests[last].Status == Pending {
		return 0, nil, revert(ReasonPending)
	}
	if level <= m.levels[requester] {
		return 0, nil, revert(ReasonHaveLevel)
	}
	price := m.levelPrice(level)
	if deposit.Cmp(price) < 0 {
		return 0, nil, revert(ReasonNotEnoughEther)
	}

	centre := centres.at(m.cursor % centres.len())
	m.cursor++

	idx := uint64(len(m.requests))
	m.requests = append(m.requests, Request{
		Requester: requester,
		Data:      data,
		Level:     level,
		Status:    Pending,
		Centre:    centre,
		Deposit:   new(big.Int).Set(price),
	})
	m.escrow = append(m.escrow, new(big.Int).Set(price))
	m.byUser[requester] = append(m.byUser[requester], idx)
	m.byCentre[centre] = append(m.byCentre[centre], idx)

	return idx, new(big.Int).Sub(deposit, price), nil
}

// Approve moves a pending request to Approved, raises the requester's level and splits the
// escrowed deposit between requester and centre. An odd wei goes to the centre.
func (m *Model) Approve(centre common.Address, index uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.decidable(centre, index, ReasonNotAllowedApprove)
	if err != nil {
		return err
	}
	req.Status = Approved
	if req.Level > m.levels[req.Requester] {
		m.levels[req.Requester] = req.Level
	}

	held := m.release(index)
	half := new(big.Int).Rsh(held, 1)
	m.credit(req.Requester, half)
	m.credit(req.Centre, new(big.Int).Sub(held, half))
	return nil
}

// Decline moves a pending request to Declined and credits the whole deposit to the centre.
func (m *Model) Decline(centre common.Address, index uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.decidable(centre, index, ReasonNotAllowedDecline)
	if err != nil {
		return err
	}
	req.Status = Declined
	m.credit(req.Centre, m.release(index))
	return nil
}

func (m *Model) decidable(centre common.Address, index uint64, notAllowed string) (*Request, error) {
	if !m.members(CentreRole).has(centre) {
		return nil, revert(notAllowed)
	}
	if index >= uint64(len(m.requests)) {
		return nil, bare()
	}
	req := &m.requests[index]
	if req.Centre != centre {
		return nil, bare()
	}
	if !CanTransition(req.Status, Approved) {
		return nil, revert(ReasonNotPending)
	}
	return req, nil
}

// Withdraw ("repair") cancels requester's last request after its centre lost the role and
// refunds the deposit. It returns the global index of the withdrawn request.
func (m *Model) Withdraw(requester common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.lastOf(requester)
	if !ok {
		return 0, bare()
	}
	req := &m.requests[idx]
	if !CanTransition(req.Status, Withdrawn) {
		return 0, revert(ReasonCannotRepair)
	}
	if m.members(CentreRole).has(req.Centre) {
		return 0, revert(ReasonCentreActive)
	}
	req.Status = Withdrawn
	m.credit(req.Requester, m.release(idx))
	return idx, nil
}

// DecreaseLevel lowers user's level. Any centre may do so; raising or keeping the level reverts.
func (m *Model) DecreaseLevel(centre, user common.Address, level uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.members(CentreRole).has(centre) {
		return revert(ReasonNotAllowedSet)
	}
	if level >= m.levels[user] {
		return revert(ReasonOnlyDecrease)
	}
	m.levels[user] = level
	return nil
}

func (m *Model) Level(user common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[user]
}

// Payments returns the withdrawable balance owed to payee.
func (m *Model) Payments(payee common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.payable[payee]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// WithdrawPayments pays out and zeroes payee's balance. Anyone may trigger it; funds always go to
// payee. Withdrawing a zero balance succeeds.
func (m *Model) WithdrawPayments(payee common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.payable[payee]
	if !ok {
		return new(big.Int)
	}
	delete(m.payable, payee)
	return v
}

// escrowed returns the deposit still held for a request. It is the full price while Pending and
// zero after the request's single terminal transition.
func (m *Model) escrowed(index uint64) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.escrow)) {
		return nil, bare()
	}
	return new(big.Int).Set(m.escrow[index]), nil
}

// Reassign records that a pending request went to centre rather than the one the rotation
// picked. A node's rotation cursor predates the model, so with several centres the observed
// assignment wins.
func (m *Model) Reassign(index uint64, centre common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.requests)) {
		return bare()
	}
	if !m.members(CentreRole).has(centre) {
		return fmt.Errorf("%w: %s is not a centre", ErrInvalidInput, centre)
	}
	req := &m.requests[index]
	if req.Centre == centre {
		return nil
	}
	old := m.byCentre[req.Centre]
	for i, idx := range old {
		if idx == index {
			m.byCentre[req.Centre] = append(old[:i:i], old[i+1:]...)
			break
		}
	}
	m.byCentre[centre] = append(m.byCentre[centre], index)
	req.Centre = centre
	return nil
}

// Request returns the request at a global index.
func (m *Model) Request(index uint64) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index >= uint64(len(m.requests)) {
		return Request{}, bare()
	}
	return m.requests[index].clone(), nil
}

// UserRequestIndex maps requester's local request index to the global one.
func (m *Model) UserRequestIndex(requester common.Address, local uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idxs := m.byUser[requester]
	if local >= uint64(len(idxs)) {
		return 0, bare()
	}
	return idxs[local], nil
}

// UserRequest is the model of viewMyRequest.
func (m *Model) UserRequest(requester common.Address, local uint64) (Request, error) {
	idx, err := m.UserRequestIndex(requester, local)
	if err != nil {
		return Request{}, err
	}
	return m.Request(idx)
}

// LastRequestIndex returns the global index of requester's most recent request.
func (m *Model) LastRequestIndex(requester common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.lastOf(requester)
	if !ok {
		return 0, bare()
	}
	return idx, nil
}

// CentreRequest returns the local-th request assigned to centre and its global index.
func (m *Model) CentreRequest(centre common.Address, local uint64) (Request, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idxs := m.byCentre[centre]
	if local >= uint64(len(idxs)) {
		return Request{}, 0, bare()
	}
	idx := idxs[local]
	return m.requests[idx].clone(), idx, nil
}

// Grant adds account to role. The caller must hold the role's admin role.
func (m *Model) Grant(caller common.Address, role common.Hash, account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAdmin(caller, role); err != nil {
		return err
	}
	m.members(role).add(account)
	return nil
}

// Revoke removes account from role. The caller must hold the role's admin role.
func (m *Model) Revoke(caller common.Address, role common.Hash, account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkAdmin(caller, role); err != nil {
		return err
	}
	m.members(role).remove(account)
	return nil
}

// Renounce removes the caller's own membership in role.
func (m *Model) Renounce(caller common.Address, role common.Hash, account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != account {
		return revert(ReasonRenounceSelf)
	}
	m.members(role).remove(account)
	return nil
}

func (m *Model) HasRole(role common.Hash, account common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members(role).has(account)
}

// RoleAdmin returns the admin role of role. Every role is administered by AdminRole.
func (m *Model) RoleAdmin(common.Hash) common.Hash { return AdminRole }

func (m *Model) RoleMemberCount(role common.Hash) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(m.members(role).len())
}

// RoleMember returns the i-th member of role. Out of range reverts without a reason.
func (m *Model) RoleMember(role common.Hash, i uint64) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.members(role)
	if i >= uint64(set.len()) {
		return common.Address{}, bare()
	}
	return set.at(int(i)), nil
}

func (m *Model) checkAdmin(caller common.Address, role common.Hash) error {
	admin := m.RoleAdmin(role)
	if !m.members(admin).has(caller) {
		return revert(MissingRoleReason(caller, admin))
	}
	return nil
}

func (m *Model) members(role common.Hash) *memberSet {
	s, ok := m.roles[role]
	if !ok {
		s = newMemberSet()
		m.roles[role] = s
	}
	return s
}

func (m *Model) lastOf(requester common.Address) (uint64, bool) {
	idxs := m.byUser[requester]
	if len(idxs) == 0 {
		return 0, false
	}
	return idxs[len(idxs)-1], true
}

func (m *Model) release(index uint64) *big.Int {
	held := m.escrow[index]
	m.escrow[index] = new(big.Int)
	return held
}

func (m *Model) credit(payee common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	cur, ok := m.payable[payee]
	if !ok {
		cur = new(big.Int)
		m.payable[payee] = cur
	}
	cur.Add(cur, amount)
}
