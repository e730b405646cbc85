package eth

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type PendingNoncer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// accountNonces hands out nonces for one account.
//
// Until the first broadcast, or after forget, the node's pending count is taken as is. Once a
// nonce is in flight the cursor only moves forward, so a node that has not yet seen the last
// transaction in its pool cannot make two submissions share a nonce.
type accountNonces struct {
	backend PendingNoncer
	addr    common.Address

	mu    sync.Mutex
	next  uint64
	known bool
}

func newAccountNonces(backend PendingNoncer, addr common.Address) *accountNonces {
	return &accountNonces{backend: backend, addr: addr}
}

func (a *accountNonces) reserve(ctx context.Context) (uint64, error) {
	n, err := a.backend.PendingNonceAt(ctx, a.addr)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known && a.next > n {
		n = a.next
	}
	a.next = n + 1
	a.known = true
	return n, nil
}

// release returns n to the cursor when it is the latest reservation and was never broadcast.
func (a *accountNonces) release(n uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.known || a.next != n+1 {
		return false
	}
	a.next = n
	return true
}

// forget drops the cursor so the next reservation trusts the node again. Used when the fate of a
// broadcast is unknown: the transaction may have been dropped, leaving a gap the cursor would
// otherwise preserve forever.
func (a *accountNonces) forget() {
	a.mu.Lock()
	a.known = false
	a.mu.Unlock()
}

// isNonceRefusal reports whether the node refused a transaction over its nonce rather than its
// content.
func isNonceRefusal(err error) bool {
	reason := strings.ToLower(Reason(err))
	return strings.Contains(reason, "nonce too low") ||
		strings.Contains(reason, "nonce too high") ||
		strings.Contains(reason, "already known") ||
		strings.Contains(reason, "replacement transaction underpriced")
}
