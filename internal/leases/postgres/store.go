// Package postgres shares account leases between suite processes on different hosts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carbontec-pub-org/contract-tests/internal/leases"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidConfig = errors.New("leases/postgres: invalid config")

const (
	acquireSQL = `
		INSERT INTO account_leases (account, holder, expires_at, acquired_at, updated_at)
		VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'), now(), now())
		ON CONFLICT (account) DO UPDATE
		SET holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at,
			acquired_at = now(),
			updated_at = now()
		WHERE account_leases.expires_at <= now()
		RETURNING holder, expires_at`

	renewSQL = `
		UPDATE account_leases
		SET expires_at = now() + ($3::bigint * interval '1 millisecond'),
			updated_at = now()
		WHERE account = $1 AND holder = $2
		RETURNING holder, expires_at`

	releaseSQL = `DELETE FROM account_leases WHERE account = $1 AND holder = $2`

	getSQL = `SELECT holder, expires_at FROM account_leases WHERE account = $1`
)

// Store implements leases.Store on a Postgres table. Expiry is judged by the database clock so
// hosts with skewed clocks agree on it.
type Store struct {
	db querier
}

// querier is the part of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ leases.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{db: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("leases/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) TryAcquire(ctx context.Context, account common.Address, holder string, ttl time.Duration) (leases.Lease, bool, error) {
	if err := check(account, holder, ttl); err != nil {
		return leases.Lease{}, false, err
	}
	l, err := s.scanLease(ctx, account, acquireSQL, key(account), holder, ttlMillis(ttl))
	if errors.Is(err, leases.ErrNotFound) {
		// Held by someone else, who may have released it since the insert conflicted.
		cur, gerr := s.Get(ctx, account)
		if errors.Is(gerr, leases.ErrNotFound) {
			return leases.Lease{}, false, nil
		}
		if gerr != nil {
			return leases.Lease{}, false, gerr
		}
		return cur, false, nil
	}
	if err != nil {
		return leases.Lease{}, false, fmt.Errorf("leases/postgres: try acquire: %w", err)
	}
	return l, true, nil
}

func (s *Store) Renew(ctx context.Context, account common.Address, holder string, ttl time.Duration) (leases.Lease, bool, error) {
	if err := check(account, holder, ttl); err != nil {
		return leases.Lease{}, false, err
	}
	l, err := s.scanLease(ctx, account, renewSQL, key(account), holder, ttlMillis(ttl))
	if errors.Is(err, leases.ErrNotFound) {
		cur, gerr := s.Get(ctx, account)
		if gerr != nil {
			return leases.Lease{}, false, gerr
		}
		if cur.Holder != holder {
			return leases.Lease{}, false, leases.ErrNotHolder
		}
		return leases.Lease{}, false, errors.New("leases/postgres: renew: row vanished")
	}
	if err != nil {
		return leases.Lease{}, false, fmt.Errorf("leases/postgres: renew: %w", err)
	}
	return l, true, nil
}

func (s *Store) Release(ctx context.Context, account common.Address, holder string) error {
	if account == (common.Address{}) || holder == "" {
		return leases.ErrInvalidInput
	}
	tag, err := s.db.Exec(ctx, releaseSQL, key(account), holder)
	if err != nil {
		return fmt.Errorf("leases/postgres: release: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	cur, err := s.Get(ctx, account)
	switch {
	case errors.Is(err, leases.ErrNotFound):
		return nil
	case err != nil:
		return err
	case cur.Holder != holder:
		return leases.ErrNotHolder
	}
	return nil
}

func (s *Store) Get(ctx context.Context, account common.Address) (leases.Lease, error) {
	if account == (common.Address{}) {
		return leases.Lease{}, leases.ErrInvalidInput
	}
	l, err := s.scanLease(ctx, account, getSQL, key(account))
	if err != nil && !errors.Is(err, leases.ErrNotFound) {
		return leases.Lease{}, fmt.Errorf("leases/postgres: get: %w", err)
	}
	return l, err
}

// scanLease runs a query returning (holder, expires_at) and maps no rows to leases.ErrNotFound.
func (s *Store) scanLease(ctx context.Context, account common.Address, sql string, args ...any) (leases.Lease, error) {
	l := leases.Lease{Account: account}
	err := s.db.QueryRow(ctx, sql, args...).Scan(&l.Holder, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return leases.Lease{}, leases.ErrNotFound
	}
	if err != nil {
		return leases.Lease{}, err
	}
	return l, nil
}

func key(account common.Address) string {
	return strings.ToLower(account.Hex())
}

func ttlMillis(ttl time.Duration) int64 {
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func check(account common.Address, holder string, ttl time.Duration) error {
	if account == (common.Address{}) || holder == "" || ttl <= 0 {
		return leases.ErrInvalidInput
	}
	return nil
}
