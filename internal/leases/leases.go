// Package leases coordinates use of shared accounts across suite processes.
//
// Genesis accounts (funder, contracts admin, KYC centre) are shared by every process that points
// at the same node. Two processes signing for the same account race on its nonce, so each one
// takes an expiring lease on the account before submitting.
package leases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidInput = errors.New("leases: invalid input")
	ErrNotFound     = errors.New("leases: not found")
	ErrNotHolder    = errors.New("leases: not holder")
)

// Lease is an expiring claim on an account.
type Lease struct {
	Account   common.Address
	Holder    string
	ExpiresAt time.Time
}

// Store is a compare-and-swap lease table keyed by account.
//
//   - TryAcquire succeeds if no lease exists for the account or the current one has expired.
//     On failure it returns the current lease.
//   - Renew extends a lease the caller still holds.
//   - Release is a no-op when the lease is already gone.
type Store interface {
	TryAcquire(ctx context.Context, account common.Address, holder string, ttl time.Duration) (Lease, bool, error)
	Renew(ctx context.Context, account common.Address, holder string, ttl time.Duration) (Lease, bool, error)
	Release(ctx context.Context, account common.Address, holder string) error
	Get(ctx context.Context, account common.Address) (Lease, error)
}

func validate(account common.Address, holder string, ttl time.Duration) error {
	if account == (common.Address{}) || holder == "" {
		return fmt.Errorf("%w: account and holder must be set", ErrInvalidInput)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", ErrInvalidInput)
	}
	return nil
}
