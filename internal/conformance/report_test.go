package conformance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/carbontec-pub-org/contract-tests/internal/blobstore"
)

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket gone")
}

func (failingBlobs) Get(context.Context, string) ([]byte, error) { return nil, blobstore.ErrNotFound }

func TestArchiveReport(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.New(ctx, blobstore.Config{Driver: blobstore.DriverMemory, Prefix: "suite"})
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	rep := &Report{Version: ReportVersion, RunID: "run-7", ChainID: "1337"}
	rep.add(Result{Name: "a", Status: StatusPassed})
	rep.add(Result{Name: "b", Status: StatusFailed, Failures: []string{"level: got 0, want 1"}})

	key, err := ArchiveReport(ctx, store, rep)
	if err != nil {
		t.Fatalf("ArchiveReport: %v", err)
	}
	if key != "runs/run-7/report.json" || rep.ReportLocation != key {
		t.Fatalf("key %q location %q", key, rep.ReportLocation)
	}

	raw, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got Report
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-7" || got.Passed != 1 || got.Failed != 1 || got.OK() || len(got.Scenarios) != 2 {
		t.Fatalf("stored report: %+v", got)
	}
	if got.Scenarios[1].Failures[0] != "level: got 0, want 1" {
		t.Fatalf("failures: %v", got.Scenarios[1].Failures)
	}
}

func TestArchiveReport_Errors(t *testing.T) {
	rep := &Report{RunID: "run-8"}
	if _, err := ArchiveReport(context.Background(), failingBlobs{}, rep); err == nil {
		t.Fatalf("expected upload error")
	}
	if rep.ReportLocation != "" {
		t.Fatalf("location recorded for a failed upload: %q", rep.ReportLocation)
	}
	if _, err := ArchiveReport(context.Background(), nil, rep); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil store: %v", err)
	}
}

func TestReport_Events(t *testing.T) {
	rep := &Report{RunID: "run-9", Node: "http://node"}
	rep.add(Result{Name: "a", Status: StatusPassed})
	rep.add(Result{Name: "b", Status: StatusSkipped, SkipReason: "no owner key"})

	evs := rep.Events()
	if len(evs) != 2 {
		t.Fatalf("events: %d", len(evs))
	}
	for i, ev := range evs {
		if ev.Version != EventVersion || ev.RunID != "run-9" || ev.Node != "http://node" || ev.Name != rep.Scenarios[i].Name {
			t.Fatalf("event %d: %+v", i, ev)
		}
	}
	raw, err := json.Marshal(evs[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["name"] != "b" || flat["skip_reason"] != "no owner key" || flat["run_id"] != "run-9" {
		t.Fatalf("event fields are not flattened: %s", raw)
	}
}
