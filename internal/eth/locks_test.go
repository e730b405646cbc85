package eth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestKeyedMutex_SerializesSameAddress(t *testing.T) {
	ctx := context.Background()
	k := NewKeyedMutex()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, addr)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("concurrent holders: got %d want 1", maxSeen)
	}
	if len(k.slots) != 0 {
		t.Fatalf("slots leaked: %d", len(k.slots))
	}
}

func TestKeyedMutex_DifferentAddressesDoNotBlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	k := NewKeyedMutex()

	u1, err := k.Lock(ctx, common.HexToAddress("0x01"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer u1()

	u2, err := k.Lock(ctx, common.HexToAddress("0x02"))
	if err != nil {
		t.Fatalf("Lock other address: %v", err)
	}
	u2()
}

func TestKeyedMutex_LockHonoursContext(t *testing.T) {
	k := NewKeyedMutex()
	addr := common.HexToAddress("0x01")

	unlock, err := k.Lock(context.Background(), addr)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, addr); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (r recordingLocker) Lock(_ context.Context, _ common.Address) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.log = append(*r.log, "lock "+r.name)
	return func() { *r.log = append(*r.log, "unlock "+r.name) }, nil
}

func TestLockers_ReleasesInReverseOrder(t *testing.T) {
	var log []string
	ls := Lockers{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log}}

	unlock, err := ls.Lock(context.Background(), common.Address{})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()
	unlock()

	want := []string{"lock a", "lock b", "unlock b", "unlock a"}
	if len(log) != len(want) {
		t.Fatalf("log: got %v want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d]: got %q want %q", i, log[i], want[i])
		}
	}
}

func TestLockers_ReleasesAcquiredOnFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	ls := Lockers{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log, err: boom}}

	if _, err := ls.Lock(context.Background(), common.Address{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(log) != 2 || log[1] != "unlock a" {
		t.Fatalf("log: got %v", log)
	}
}
