package policy

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Node-side transfer rejections. The texts are what the node returns for a refused value transfer.
var (
	ErrNotActivated   = errors.New("account not activated")
	ErrKYCLevelTooLow = errors.New("kyc level too low")
)

// CheckTransfer applies the node's admission rules for a plain value transfer: the sender must
// have paid the activation fee and its KYC level must reach the recipient's filter level.
func CheckTransfer(activated bool, senderLevel, recipientFilter uint64) error {
	if !activated {
		return ErrNotActivated
	}
	if !WouldPass(senderLevel, recipientFilter) {
		return ErrKYCLevelTooLow
	}
	return nil
}

// WouldPass mirrors the filter contract's filter(sender, recipient) view.
func WouldPass(senderLevel, recipientFilter uint64) bool {
	return senderLevel >= recipientFilter
}

// LevelSource reports an account's KYC level. *kyc.Model satisfies it.
type LevelSource interface {
	Level(account common.Address) uint64
}

// Gate predicts transfer admission from fee payments, filter levels and KYC levels.
type Gate struct {
	fee    *Fee
	levels LevelSource

	mu      sync.Mutex
	filters map[common.Address]uint64
}

func NewGate(fee *Fee, levels LevelSource) *Gate {
	return &Gate{fee: fee, levels: levels, filters: make(map[common.Address]uint64)}
}

// SetFilterLevel records account's own filter level. Any level, including 0, is accepted.
func (g *Gate) SetFilterLevel(account common.Address, level uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if level == 0 {
		delete(g.filters, account)
		return
	}
	g.filters[account] = level
}

func (g *Gate) FilterLevel(account common.Address) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filters[account]
}

// Allows is the model of the filter contract's filter view. It ignores activation.
func (g *Gate) Allows(sender, recipient common.Address) bool {
	return WouldPass(g.levels.Level(sender), g.FilterLevel(recipient))
}

// Check predicts whether the node admits a value transfer from sender to recipient.
func (g *Gate) Check(sender, recipient common.Address) error {
	return CheckTransfer(g.fee.Paid(sender), g.levels.Level(sender), g.FilterLevel(recipient))
}
