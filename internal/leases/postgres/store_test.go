package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carbontec-pub-org/contract-tests/internal/leases"
)

type fakeRow struct {
	holder    string
	expiresAt time.Time
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.holder
	*dest[1].(*time.Time) = r.expiresAt
	return nil
}

// fakeDB answers each query text from a queue of rows, so a test can script what another process
// did between two statements.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string][]fakeRow
	queries []string
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	queue := f.rows[sql]
	if len(queue) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	f.rows[sql] = queue[1:]
	return queue[0]
}

var leasedAccount = common.HexToAddress("0x00000000000000000000000000000000000a1fa0")

func TestStore_TryAcquire_HolderReleasedAfterConflict(t *testing.T) {
	// The insert conflicts with a live lease, then its holder releases before the follow-up read.
	db := &fakeDB{rows: map[string][]fakeRow{
		acquireSQL: {{err: pgx.ErrNoRows}},
		getSQL:     {{err: pgx.ErrNoRows}},
	}}
	s := &Store{db: db}

	cur, ok, err := s.TryAcquire(context.Background(), leasedAccount, "runner-b", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Fatalf("expected not acquired")
	}
	if cur != (leases.Lease{}) {
		t.Fatalf("lease: %+v", cur)
	}
	if len(db.queries) != 2 {
		t.Fatalf("queries: %d", len(db.queries))
	}
}

func TestStore_TryAcquire_ReportsCurrentHolder(t *testing.T) {
	expires := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: map[string][]fakeRow{
		acquireSQL: {{err: pgx.ErrNoRows}},
		getSQL:     {{holder: "runner-a", expiresAt: expires}},
	}}
	s := &Store{db: db}

	cur, ok, err := s.TryAcquire(context.Background(), leasedAccount, "runner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if cur.Holder != "runner-a" || !cur.ExpiresAt.Equal(expires) || cur.Account != leasedAccount {
		t.Fatalf("lease: %+v", cur)
	}
}

func TestStore_TryAcquire_ReadErrorIsReturned(t *testing.T) {
	boom := errors.New("conn closed")
	db := &fakeDB{rows: map[string][]fakeRow{
		acquireSQL: {{err: pgx.ErrNoRows}},
		getSQL:     {{err: boom}},
	}}
	s := &Store{db: db}

	if _, _, err := s.TryAcquire(context.Background(), leasedAccount, "runner-b", time.Minute); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestLocker_RetriesWhenLeaseFreedDuringConflict(t *testing.T) {
	expires := time.Now().Add(time.Minute)
	db := &fakeDB{rows: map[string][]fakeRow{
		acquireSQL: {{err: pgx.ErrNoRows}, {holder: "runner-b", expiresAt: expires}},
		getSQL:     {{err: pgx.ErrNoRows}},
	}}
	locker, err := leases.NewLocker(&Store{db: db}, leases.LockerConfig{
		Holder:        "runner-b",
		TTL:           time.Minute,
		RetryInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}

	unlock, err := locker.Lock(context.Background(), leasedAccount)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()
}
