package leases

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type accountLocker interface {
	Lock(ctx context.Context, account common.Address) (func(), error)
}

// Scoped applies a locker only to a fixed set of accounts, the ones several runs share.
// Other accounts are returned unlocked straight away.
type Scoped struct {
	inner    accountLocker
	accounts map[common.Address]struct{}
}

func NewScoped(inner accountLocker, accounts ...common.Address) *Scoped {
	set := make(map[common.Address]struct{}, len(accounts))
	for _, a := range accounts {
		set[a] = struct{}{}
	}
	return &Scoped{inner: inner, accounts: set}
}

func (s *Scoped) Lock(ctx context.Context, account common.Address) (func(), error) {
	if _, ok := s.accounts[account]; !ok || s.inner == nil {
		return func() {}, ctx.Err()
	}
	return s.inner.Lock(ctx, account)
}
