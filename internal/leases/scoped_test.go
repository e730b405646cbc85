package leases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestScoped_LeasesOnlySharedAccounts(t *testing.T) {
	store := NewMemoryStore(nil)
	locker, err := NewLocker(store, LockerConfig{Holder: "run-a", TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}
	s := NewScoped(locker, alpha, admin)
	ctx := context.Background()

	unlock, err := s.Lock(ctx, alpha)
	if err != nil {
		t.Fatalf("Lock alpha: %v", err)
	}
	if l, err := store.Get(ctx, alpha); err != nil || l.Holder != "run-a" {
		t.Fatalf("alpha lease: %+v err=%v", l, err)
	}
	unlock()
	if _, err := store.Get(ctx, alpha); !errors.Is(err, ErrNotFound) {
		t.Fatalf("alpha lease after unlock: %v", err)
	}

	fresh := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	unlock, err = s.Lock(ctx, fresh)
	if err != nil {
		t.Fatalf("Lock fresh: %v", err)
	}
	unlock()
	if _, err := store.Get(ctx, fresh); !errors.Is(err, ErrNotFound) {
		t.Fatalf("generated account was leased: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Lock(cancelled, fresh); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx: %v", err)
	}
}
