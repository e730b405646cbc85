package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carbontec-pub-org/contract-tests/internal/blobstore"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one scenario.
type Result struct {
	Name       string   `json:"name"`
	Title      string   `json:"title,omitempty"`
	Status     Status   `json:"status"`
	Failures   []string `json:"failures,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Event is published once per finished scenario.
type Event struct {
	Version string `json:"version"`
	RunID   string `json:"run_id"`
	Node    string `json:"node,omitempty"`
	Result
}

const EventVersion = "contract-tests.result.v1"

type Report struct {
	Version        string    `json:"version"`
	RunID          string    `json:"run_id"`
	Node           string    `json:"node,omitempty"`
	ChainID        string    `json:"chain_id,omitempty"`
	StartedAtUTC   time.Time `json:"started_at_utc"`
	FinishedAtUTC  time.Time `json:"finished_at_utc"`
	DurationMS     int64     `json:"duration_ms"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	Scenarios      []Result  `json:"scenarios"`
	ReportLocation string    `json:"report_location,omitempty"`
}

const ReportVersion = "contract-tests.report.v1"

// OK reports whether no scenario failed.
func (r *Report) OK() bool { return r.Failed == 0 }

// Events returns the per-scenario events of the report, in scenario order.
func (r *Report) Events() []Event {
	out := make([]Event, 0, len(r.Scenarios))
	for _, res := range r.Scenarios {
		out = append(out, newEvent(r.RunID, r.Node, res))
	}
	return out
}

func newEvent(runID, node string, res Result) Event {
	return Event{Version: EventVersion, RunID: runID, Node: node, Result: res}
}

func (r *Report) add(res Result) {
	switch res.Status {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
	r.Scenarios = append(r.Scenarios, res)
}

// ArchiveReport uploads rep under its run id and records where it went.
func ArchiveReport(ctx context.Context, store blobstore.Store, rep *Report) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%w: nil blob store", ErrInvalidConfig)
	}
	key := blobstore.ReportKey(rep.RunID)
	rep.ReportLocation = key
	raw, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		rep.ReportLocation = ""
		return "", fmt.Errorf("conformance: marshal report: %w", err)
	}
	if err := store.Put(ctx, key, raw, blobstore.ContentTypeJSON); err != nil {
		rep.ReportLocation = ""
		return "", fmt.Errorf("conformance: upload report: %w", err)
	}
	return key, nil
}
