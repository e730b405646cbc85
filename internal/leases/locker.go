package leases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultRetryInterval = 250 * time.Millisecond
)

var ErrInvalidConfig = errors.New("leases: invalid config")

type LockerConfig struct {
	// Holder identifies this process in the lease table. Defaults to a random uuid.
	Holder string

	// TTL bounds how long a crashed holder blocks an account. Held leases are renewed every TTL/3.
	TTL time.Duration

	// RetryInterval is the wait between acquisition attempts while another holder has the account.
	RetryInterval time.Duration

	Logger *slog.Logger
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Locker turns a Store into a blocking per-account lock. It satisfies eth.AccountLocker.
type Locker struct {
	store Store
	cfg   LockerConfig
	log   *slog.Logger
}

func NewLocker(store Store, cfg LockerConfig) (*Locker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if cfg.TTL < 0 || cfg.RetryInterval < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if cfg.Holder == "" {
		cfg.Holder = uuid.NewString()
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Locker{store: store, cfg: cfg, log: log}, nil
}

func (l *Locker) Holder() string { return l.cfg.Holder }

// Lock blocks until this holder owns the lease on account or ctx is done. The lease is kept alive
// in the background until the returned func is called.
func (l *Locker) Lock(ctx context.Context, account common.Address) (func(), error) {
	for {
		cur, ok, err := l.store.TryAcquire(ctx, account, l.cfg.Holder, l.cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("leases: acquire %s: %w", account, err)
		}
		if ok {
			break
		}
		l.log.Debug("account leased elsewhere", "account", account, "holder", cur.Holder, "expires_at", cur.ExpiresAt)
		if err := l.cfg.Sleep(ctx, l.cfg.RetryInterval); err != nil {
			return nil, err
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(account, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL)
			defer cancel()
			if err := l.store.Release(rctx, account, l.cfg.Holder); err != nil {
				l.log.Warn("release lease", "account", account, "err", err)
			}
		})
	}, nil
}

func (l *Locker) keepAlive(account common.Address, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.cfg.TTL / 3
	if every <= 0 {
		every = l.cfg.TTL
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			_, ok, err := l.store.Renew(ctx, account, l.cfg.Holder, l.cfg.TTL)
			if err != nil || !ok {
				// The row may have expired under a slow renewal; take it back if nobody else did.
				_, ok, err = l.store.TryAcquire(ctx, account, l.cfg.Holder, l.cfg.TTL)
			}
			cancel()
			if err != nil || !ok {
				l.log.Warn("lost account lease", "account", account, "err", err)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
