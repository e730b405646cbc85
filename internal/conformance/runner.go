package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/carbontec-pub-org/contract-tests/internal/queue"
)

const (
	DefaultParallel        = 4
	DefaultScenarioTimeout = 3 * time.Minute
	DefaultCleanupTimeout  = time.Minute
	DefaultPublishTimeout  = 10 * time.Second
)

type RunnerConfig struct {
	// Parallel bounds the scenarios in flight. Exclusive scenarios always run alone.
	Parallel        int
	ScenarioTimeout time.Duration
	CleanupTimeout  time.Duration
	// PublishTimeout bounds each event delivery so a dead broker cannot hold up scenarios.
	PublishTimeout time.Duration

	// Node is recorded in the report and in events.
	Node string
	// RunID defaults to a random uuid.
	RunID string

	// Events receives one JSON Event per finished scenario. Nil disables publishing.
	Events queue.Publisher

	Logger *slog.Logger
	Now    func() time.Time
}

type Runner struct {
	env *Env
	cfg RunnerConfig
	log *slog.Logger

	// exclusive is held for writing by exclusive scenarios and for reading by the rest.
	exclusive sync.RWMutex
}

func NewRunner(env *Env, cfg RunnerConfig) (*Runner, error) {
	if cfg.Parallel == 0 {
		cfg.Parallel = DefaultParallel
	}
	if cfg.ScenarioTimeout == 0 {
		cfg.ScenarioTimeout = DefaultScenarioTimeout
	}
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Parallel < 0 || cfg.ScenarioTimeout < 0 || cfg.CleanupTimeout < 0 || cfg.PublishTimeout < 0 {
		return nil, fmt.Errorf("%w: parallel and timeouts must be > 0", ErrInvalidConfig)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Events == nil {
		cfg.Events = queue.Discard{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{env: env, cfg: cfg, log: log.With("run_id", cfg.RunID)}, nil
}

func (r *Runner) RunID() string { return r.cfg.RunID }

// Run executes scenarios and returns the report with results in input order. It returns an
// error only when ctx ends before every scenario finished.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Report, error) {
	started := r.cfg.Now()
	rep := &Report{
		Version:      ReportVersion,
		RunID:        r.cfg.RunID,
		Node:         r.cfg.Node,
		StartedAtUTC: started.UTC(),
	}
	r.log.Info("run started", "scenarios", len(scenarios), "parallel", r.cfg.Parallel)

	results := make([]Result, len(scenarios))
	p := pool.New().WithMaxGoroutines(r.cfg.Parallel)
	for i, s := range scenarios {
		p.Go(func() {
			results[i] = r.runOne(ctx, s)
			r.publish(ctx, results[i])
		})
	}
	p.Wait()

	for _, res := range results {
		rep.add(res)
	}
	finished := r.cfg.Now()
	rep.FinishedAtUTC = finished.UTC()
	rep.DurationMS = finished.Sub(started).Milliseconds()
	r.log.Info("run finished", "passed", rep.Passed, "failed", rep.Failed, "skipped", rep.Skipped, "duration_ms", rep.DurationMS)

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("conformance: run interrupted: %w", err)
	}
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, s Scenario) Result {
	if s.Exclusive {
		r.exclusive.Lock()
		defer r.exclusive.Unlock()
	} else {
		r.exclusive.RLock()
		defer r.exclusive.RUnlock()
	}

	res := Result{Name: s.Name, Title: s.Title}
	if err := ctx.Err(); err != nil {
		res.Status = StatusSkipped
		res.SkipReason = "run interrupted"
		return res
	}

	sctx, cancel := context.WithTimeout(ctx, r.cfg.ScenarioTimeout)
	defer cancel()
	t := newT(sctx, r.env, s.Name, r.log)

	start := r.cfg.Now()
	t.execute(s, r.cfg.CleanupTimeout)
	res.DurationMS = r.cfg.Now().Sub(start).Milliseconds()

	t.mu.Lock()
	res.Failures = append([]string(nil), t.failures...)
	res.SkipReason = t.skip
	t.mu.Unlock()

	switch {
	case len(res.Failures) > 0:
		res.Status = StatusFailed
		r.log.Error("scenario failed", "scenario", s.Name, "failures", len(res.Failures), "first", res.Failures[0])
	case res.SkipReason != "":
		res.Status = StatusSkipped
		r.log.Info("scenario skipped", "scenario", s.Name, "reason", res.SkipReason)
	default:
		res.Status = StatusPassed
		r.log.Info("scenario passed", "scenario", s.Name, "duration_ms", res.DurationMS)
	}
	return res
}

func (r *Runner) publish(ctx context.Context, res Result) {
	raw, err := json.Marshal(newEvent(r.cfg.RunID, r.cfg.Node, res))
	if err != nil {
		r.log.Warn("marshal result event", "scenario", res.Name, "err", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PublishTimeout)
	defer cancel()
	if err := r.cfg.Events.Publish(pctx, r.cfg.RunID, raw); err != nil {
		r.log.Warn("publish result event", "scenario", res.Name, "err", err)
	}
}
