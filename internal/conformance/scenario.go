package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/policy"
)

// Scenario is one conformance check.
type Scenario struct {
	// Name is a slash separated path, e.g. "kyc/approving/by_assigned_centre". --run matches it.
	Name  string
	Title string

	// Exclusive scenarios change state other scenarios rely on (role members, fee owner, prices,
	// centre payments) and run with nothing else in flight.
	Exclusive bool

	Run func(t *T)
}

// Catalogue returns every scenario, ordered by name.
func Catalogue() []Scenario {
	var all []Scenario
	all = append(all, feeScenarios()...)
	all = append(all, filterScenarios()...)
	all = append(all, requestScenarios()...)
	all = append(all, decisionScenarios()...)
	all = append(all, roleScenarios()...)
	all = append(all, paymentScenarios()...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Select keeps the scenarios whose name matches pattern. An empty pattern keeps all of them.
func Select(all []Scenario, pattern string) ([]Scenario, error) {
	if strings.TrimSpace(pattern) == "" {
		return all, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: --run: %v", ErrInvalidConfig, err)
	}
	var out []Scenario
	for _, s := range all {
		if re.MatchString(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

// T is the handle a scenario runs with. Like testing.T, Fatalf and Skipf stop the scenario and
// Errorf records a failure and continues. Cleanups run in reverse registration order after the
// scenario returns, whatever its outcome.
type T struct {
	ctx  context.Context
	env  *Env
	name string
	log  *slog.Logger

	mu       sync.Mutex
	failures []string
	skip     string
	cleanups []func(ctx context.Context) error

	ledger *Ledger
	fee    *policy.Fee
	gate   *policy.Gate
	// requests counts the KYC requests each account created in this scenario.
	requests       map[common.Address]uint64
	centreRestored bool
}

func newT(ctx context.Context, env *Env, name string, log *slog.Logger) *T {
	return &T{
		ctx:      ctx,
		env:      env,
		name:     name,
		log:      log.With("scenario", name),
		requests: make(map[common.Address]uint64),
	}
}

func (t *T) Context() context.Context { return t.ctx }
func (t *T) Env() *Env { return t.env }
func (t *T) Name() string { return t.name }

func (t *T) Logf(format string, args ...any) {
	t.log.Debug(fmt.Sprintf(format, args...))
}

func (t *T) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.failures = append(t.failures, msg)
	t.mu.Unlock()
	t.log.Warn("check failed", "msg", msg)
}

// Fatalf records a failure and stops the scenario. It must be called from the scenario goroutine.
func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	runtime.Goexit()
}

// Skipf marks the scenario skipped and stops it. Failures recorded before still count.
func (t *T) Skipf(format string, args ...any) {
	t.mu.Lock()
	t.skip = fmt.Sprintf(format, args...)
	t.mu.Unlock()
	runtime.Goexit()
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures) > 0
}

// Cleanup registers fn to run after the scenario with a fresh context.
func (t *T) Cleanup(fn func(ctx context.Context) error) {
	t.mu.Lock()
	t.cleanups = append(t.cleanups, fn)
	t.mu.Unlock()
}

func (t *T) runCleanups(timeout time.Duration) {
	t.mu.Lock()
	fns := t.cleanups
	t.cleanups = nil
	t.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := fns[i](ctx)
		cancel()
		if err != nil {
			t.Errorf("cleanup: %v", err)
		}
	}
}

// execute runs s.Run on its own goroutine so Fatalf can unwind it, then runs the cleanups.
func (t *T) execute(s Scenario, cleanupTimeout time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic: %v", r)
			}
		}()
		s.Run(t)
	}()
	<-done
	t.runCleanups(cleanupTimeout)
}
