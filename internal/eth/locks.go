package eth

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLocker provides mutual exclusion per account address.
//
// Lock blocks until the account is held or ctx is done. The returned func releases it and is safe
// to call more than once.
type AccountLocker interface {
	Lock(ctx context.Context, addr common.Address) (unlock func(), err error)
}

// KeyedMutex is a process-local AccountLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[common.Address]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[common.Address]*slot)}
}

func (k *KeyedMutex) Lock(ctx context.Context, addr common.Address) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[addr]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[addr] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(addr, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(addr, s)
		})
	}, nil
}

func (k *KeyedMutex) drop(addr common.Address, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, addr)
	}
}

// Lockers acquires every locker in order and releases them in reverse.
type Lockers []AccountLocker

func (ls Lockers) Lock(ctx context.Context, addr common.Address) (func(), error) {
	unlocks := make([]func(), 0, len(ls))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range ls {
		if l == nil {
			continue
		}
		u, err := l.Lock(ctx, addr)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
