package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/carbontec-pub-org/contract-tests/internal/conformance"
	"github.com/carbontec-pub-org/contract-tests/internal/queue"
)

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Node != "http://localhost:8575" {
		t.Fatalf("node: %q", cfg.Node)
	}
	if cfg.Parallel != conformance.DefaultParallel || !cfg.Preflight || cfg.OutputPath != "-" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.KeysSource != "env" || cfg.EventsDriver != "none" || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestParseArgs_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := parseArgs([]string{
		"--node", "http://10.0.0.5:8545",
		"--run", "^kyc/",
		"--parallel", "8",
		"--timeout", "10m",
		"--confirm-timeout", "30s",
		"--poll-interval", "250ms",
		"--output", "/tmp/report.json",
		"--keys-source", "AWS",
		"--events-driver", "kafka",
		"--kafka-brokers", "127.0.0.1:9092, 127.0.0.1:9093",
		"--log-level", "debug",
		"--postgres-dsn", " postgres://localhost/leases ",
	})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Node != "http://10.0.0.5:8545" || cfg.Run != "^kyc/" || cfg.Parallel != 8 {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.Timeout != 10*time.Minute || cfg.ConfirmTimeout != 30*time.Second || cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("durations: %+v", cfg)
	}
	if cfg.KeysSource != "aws" || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("keys source %q log level %v", cfg.KeysSource, cfg.LogLevel)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "127.0.0.1:9093" {
		t.Fatalf("brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.PostgresDSN != "postgres://localhost/leases" {
		t.Fatalf("dsn: %q", cfg.PostgresDSN)
	}
}

func TestParseArgs_Rejects(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"--node", " "}, "--node"},
		{[]string{"--parallel", "0"}, "--parallel"},
		{[]string{"--confirm-timeout", "0s"}, "--confirm-timeout"},
		{[]string{"--keys-source", "vault"}, "--keys-source"},
		{[]string{"--events-driver", "kafka"}, "--kafka-brokers"},
		{[]string{"--events-driver", "nats"}, "--events-driver"},
		{[]string{"--events-driver", "stdio"}, "--output"},
		{[]string{"--log-level", "loud"}, "--log-level"},
		{[]string{"extra"}, "unexpected arguments"},
	} {
		_, err := parseArgs(tc.args)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: got %v, want error mentioning %s", tc.args, err, tc.want)
		}
	}
}

func TestParseArgs_EventsDriverUsesQueueValidation(t *testing.T) {
	t.Parallel()

	_, err := parseArgs([]string{"--events-driver", "nats"})
	if !errors.Is(err, queue.ErrInvalidConfig) {
		t.Fatalf("expected queue.ErrInvalidConfig, got %v", err)
	}
	cfg, err := parseArgs([]string{"--events-driver", " NONE "})
	if err != nil || cfg.EventsDriver != queue.DriverNone {
		t.Fatalf("none: got %q, %v", cfg.EventsDriver, err)
	}
}

func TestRunMain_ListsCatalogue(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := runMain([]string{"--list"}, &out); err != nil {
		t.Fatalf("runMain: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(conformance.Catalogue()) {
		t.Fatalf("listed %d scenarios, catalogue has %d", len(lines), len(conformance.Catalogue()))
	}
	if !strings.HasPrefix(lines[0], conformance.Catalogue()[0].Name) {
		t.Fatalf("first line: %q", lines[0])
	}
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"--parallel", "-1"},
		{"--run", "kyc/("},
		{"--run", "^nothing-matches$"},
	} {
		err := runMain(args, &bytes.Buffer{})
		var uerr usageError
		if !errors.As(err, &uerr) {
			t.Fatalf("%v: got %v, want usage error", args, err)
		}
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	rep := &conformance.Report{Version: conformance.ReportVersion, RunID: "run-1", Passed: 2}

	var stdout bytes.Buffer
	if err := writeReport("-", &stdout, rep); err != nil {
		t.Fatalf("writeReport stdout: %v", err)
	}
	var got conformance.Report
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil || got.RunID != "run-1" {
		t.Fatalf("stdout report: %+v err=%v", got, err)
	}

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	stdout.Reset()
	if err := writeReport(path, &stdout, rep); err != nil {
		t.Fatalf("writeReport file: %v", err)
	}
	if stdout.String() != "wrote report: "+path+"\n" {
		t.Fatalf("stdout: %q", stdout.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := json.Unmarshal(raw, &got); err != nil || got.Passed != 2 {
		t.Fatalf("file report: %+v err=%v", got, err)
	}
}

func TestLoadSigners_FallsBackToDevKeys(t *testing.T) {
	t.Setenv("CT_TEST_ALPHA", "")
	t.Setenv("CT_TEST_ADMIN", "0x"+conformance.DevCentreKey)

	cfg, err := parseArgs([]string{"--alpha-key-name", "CT_TEST_ALPHA", "--admin-key-name", "CT_TEST_ADMIN", "--centre-key-name", ""})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	alpha, admin, centre, err := loadSigners(context.Background(), cfg)
	if err != nil {
		t.Fatalf("loadSigners: %v", err)
	}
	if admin.Address() != centre.Address() {
		t.Fatalf("admin key from env not used: admin %s centre %s", admin.Address(), centre.Address())
	}
	if alpha.Address() == admin.Address() {
		t.Fatalf("alpha did not fall back to its dev key")
	}
}

func TestLoadSigners_RejectsBadKey(t *testing.T) {
	t.Setenv("CT_TEST_BAD", "not-a-key")

	cfg, err := parseArgs([]string{"--alpha-key-name", "CT_TEST_BAD"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if _, _, _, err := loadSigners(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "CT_TEST_BAD") {
		t.Fatalf("got %v", err)
	}
}
