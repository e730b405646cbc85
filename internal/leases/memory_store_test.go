package leases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alpha = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
)

func TestMemoryStore_AcquireRenewReleaseAndTakeOver(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	l, ok, err := s.TryAcquire(ctx, alpha, "run-a", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if l.Holder != "run-a" || !l.ExpiresAt.Equal(now.Add(10*time.Second)) {
		t.Fatalf("lease: %+v", l)
	}

	cur, ok, err := s.TryAcquire(ctx, alpha, "run-b", 10*time.Second)
	if err != nil || ok || cur.Holder != "run-a" {
		t.Fatalf("contended acquire: ok=%v holder=%q err=%v", ok, cur.Holder, err)
	}

	// Different accounts are independent.
	if _, ok, err := s.TryAcquire(ctx, admin, "run-b", 10*time.Second); err != nil || !ok {
		t.Fatalf("TryAcquire admin: ok=%v err=%v", ok, err)
	}

	now = now.Add(5 * time.Second)
	l, ok, err = s.Renew(ctx, alpha, "run-a", 10*time.Second)
	if err != nil || !ok || !l.ExpiresAt.Equal(now.Add(10*time.Second)) {
		t.Fatalf("Renew: %+v ok=%v err=%v", l, ok, err)
	}
	if _, _, err := s.Renew(ctx, alpha, "run-b", 10*time.Second); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("Renew by non-holder: %v", err)
	}
	if err := s.Release(ctx, alpha, "run-b"); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("Release by non-holder: %v", err)
	}

	// An expired lease can be taken over.
	now = now.Add(11 * time.Second)
	l, ok, err = s.TryAcquire(ctx, alpha, "run-b", 10*time.Second)
	if err != nil || !ok || l.Holder != "run-b" {
		t.Fatalf("takeover: %+v ok=%v err=%v", l, ok, err)
	}
	if _, _, err := s.Renew(ctx, alpha, "run-a", time.Second); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("Renew by previous holder: %v", err)
	}

	if err := s.Release(ctx, alpha, "run-b"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := s.Release(ctx, alpha, "run-b"); err != nil {
		t.Fatalf("Release twice: %v", err)
	}
	if _, err := s.Get(ctx, alpha); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after release: %v", err)
	}
	if _, _, err := s.Renew(ctx, alpha, "run-b", time.Second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Renew after release: %v", err)
	}
}

func TestMemoryStore_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(nil)
	ctx := context.Background()
	if _, _, err := s.TryAcquire(ctx, common.Address{}, "h", time.Second); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero account: %v", err)
	}
	if _, _, err := s.TryAcquire(ctx, alpha, "", time.Second); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty holder: %v", err)
	}
	if _, _, err := s.TryAcquire(ctx, alpha, "h", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ttl: %v", err)
	}
}
