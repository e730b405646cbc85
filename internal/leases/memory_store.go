package leases

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore keeps leases in process memory. It coordinates goroutines of one process and
// backs unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[common.Address]Lease
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, leases: make(map[common.Address]Lease)}
}

func (s *MemoryStore) TryAcquire(_ context.Context, account common.Address, holder string, ttl time.Duration) (Lease, bool, error) {
	if err := validate(account, holder, ttl); err != nil {
		return Lease{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.leases[account]; ok && cur.ExpiresAt.After(now) {
		return cur, false, nil
	}
	l := Lease{Account: account, Holder: holder, ExpiresAt: now.Add(ttl)}
	s.leases[account] = l
	return l, true, nil
}

func (s *MemoryStore) Renew(_ context.Context, account common.Address, holder string, ttl time.Duration) (Lease, bool, error) {
	if err := validate(account, holder, ttl); err != nil {
		return Lease{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[account]
	switch {
	case !ok:
		return Lease{}, false, ErrNotFound
	case cur.Holder != holder:
		return Lease{}, false, ErrNotHolder
	}
	cur.ExpiresAt = s.now().Add(ttl)
	s.leases[account] = cur
	return cur, true, nil
}

func (s *MemoryStore) Release(_ context.Context, account common.Address, holder string) error {
	if account == (common.Address{}) || holder == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[account]
	if !ok {
		return nil
	}
	if cur.Holder != holder {
		return ErrNotHolder
	}
	delete(s.leases, account)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, account common.Address) (Lease, error) {
	if account == (common.Address{}) {
		return Lease{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[account]
	if !ok {
		return Lease{}, ErrNotFound
	}
	return cur, nil
}
