package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/carbontec-pub-org/contract-tests/internal/blobstore"
	"github.com/carbontec-pub-org/contract-tests/internal/conformance"
	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
	"github.com/carbontec-pub-org/contract-tests/internal/leases"
	leasespg "github.com/carbontec-pub-org/contract-tests/internal/leases/postgres"
	"github.com/carbontec-pub-org/contract-tests/internal/queue"
	"github.com/carbontec-pub-org/contract-tests/internal/secrets"
)

const (
	exitFailed = 1
	exitUsage  = 2
)

// errFailed reports a run that completed with failing scenarios.
var errFailed = errors.New("scenarios failed")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type config struct {
	Node            string
	Run             string
	List            bool
	Parallel        int
	Timeout         time.Duration
	ScenarioTimeout time.Duration
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	Preflight       bool
	ABIDir          string
	OutputPath      string
	EnvFile         string
	LogLevel        slog.Level

	KeysSource    string
	AlphaKeyName  string
	AdminKeyName  string
	CentreKeyName string

	PostgresDSN string

	EventsDriver string
	EventsTopic  string
	KafkaBrokers []string

	ReportBucket string
	ReportPrefix string
}

func main() {
	err := runMain(os.Args[1:], os.Stdout)
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var uerr usageError
	if errors.As(err, &uerr) {
		os.Exit(exitUsage)
	}
	os.Exit(exitFailed)
}

func runMain(args []string, stdout io.Writer) error {
	cfg, err := parseArgs(args)
	if err != nil {
		return usageError{err}
	}
	if cfg.List {
		for _, s := range conformance.Catalogue() {
			if _, err := fmt.Fprintf(stdout, "%-55s %s\n", s.Name, s.Title); err != nil {
				return err
			}
		}
		return nil
	}
	scenarios, err := conformance.Select(conformance.Catalogue(), cfg.Run)
	if err != nil {
		return usageError{err}
	}
	if len(scenarios) == 0 {
		return usageError{fmt.Errorf("--run %q matches no scenario", cfg.Run)}
	}

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", cfg.EnvFile, err)
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	runID := uuid.NewString()
	log = log.With("run_id", runID)

	alpha, admin, centre, err := loadSigners(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, cfg.Node)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Node, err)
	}
	defer client.Close()

	lockers := eth.Lockers{eth.NewKeyedMutex()}
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("init pgx pool: %w", err)
		}
		defer pool.Close()

		store, err := leasespg.New(pool)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure lease schema: %w", err)
		}
		locker, err := leases.NewLocker(store, leases.LockerConfig{Holder: runID, Logger: log})
		if err != nil {
			return err
		}
		lockers = append(lockers, leases.NewScoped(locker, alpha.Address(), admin.Address(), centre.Address()))
		log.Info("sharing genesis accounts through postgres leases", "holder", runID)
	}

	submitter, err := eth.NewSubmitter(client, eth.SubmitterConfig{
		Preflight:           cfg.Preflight,
		ReceiptPollInterval: cfg.PollInterval,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		Locker:              lockers,
		Logger:              log,
	})
	if err != nil {
		return err
	}

	abis, err := loadABIs(cfg.ABIDir)
	if err != nil {
		return err
	}
	env, err := conformance.NewEnv(client, submitter, contracts.Bind(abis, client, submitter), conformance.EnvConfig{
		Alpha:  alpha,
		Admin:  admin,
		Centre: centre,
		Logger: log,
	})
	if err != nil {
		return err
	}
	info, err := env.Check(ctx)
	if err != nil {
		return err
	}

	events, err := queue.NewPublisher(queue.Config{
		Driver:  cfg.EventsDriver,
		Topic:   cfg.EventsTopic,
		Brokers: cfg.KafkaBrokers,
		Writer:  stdout,
	})
	if err != nil {
		return usageError{err}
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn("close events publisher", "err", err)
		}
	}()

	runner, err := conformance.NewRunner(env, conformance.RunnerConfig{
		Parallel:        cfg.Parallel,
		ScenarioTimeout: cfg.ScenarioTimeout,
		Node:            cfg.Node,
		RunID:           runID,
		Events:          events,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	rep, runErr := runner.Run(ctx, scenarios)
	rep.ChainID = info.ChainID.String()

	if cfg.ReportBucket != "" {
		if err := archive(ctx, cfg, rep); err != nil {
			log.Error("archive report", "err", err)
		}
	}
	if err := writeReport(cfg.OutputPath, stdout, rep); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !rep.OK() {
		return fmt.Errorf("%w: %d of %d", errFailed, rep.Failed, len(rep.Scenarios))
	}
	return nil
}

func parseArgs(args []string) (config, error) {
	var cfg config
	var brokersRaw, logLevel string

	fs := flag.NewFlagSet("contract-conformance", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Node, "node", "http://localhost:8575", "JSON-RPC endpoint of the node under test")
	fs.StringVar(&cfg.Run, "run", "", "regexp selecting scenarios by name")
	fs.BoolVar(&cfg.List, "list", false, "print the scenario catalogue and exit")
	fs.IntVar(&cfg.Parallel, "parallel", conformance.DefaultParallel, "scenarios in flight")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Minute, "overall timeout")
	fs.DurationVar(&cfg.ScenarioTimeout, "scenario-timeout", conformance.DefaultScenarioTimeout, "per-scenario timeout")
	fs.DurationVar(&cfg.ConfirmTimeout, "confirm-timeout", eth.DefaultConfirmTimeout, "receipt wait per transaction")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", eth.DefaultReceiptPollInterval, "receipt poll interval")
	fs.BoolVar(&cfg.Preflight, "preflight", true, "simulate transactions before signing")
	fs.StringVar(&cfg.ABIDir, "abi-dir", "", "directory with contract ABIs (default: embedded)")
	fs.StringVar(&cfg.OutputPath, "output", "-", "report path or '-' for stdout")
	fs.StringVar(&cfg.EnvFile, "env-file", "", "optional .env file loaded before resolving keys")
	fs.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	fs.StringVar(&cfg.KeysSource, "keys-source", secrets.SourceEnv, "key source: env|aws")
	fs.StringVar(&cfg.AlphaKeyName, "alpha-key-name", "CONTRACT_TESTS_ALPHA_KEY", "secret holding the funding account key")
	fs.StringVar(&cfg.AdminKeyName, "admin-key-name", "CONTRACT_TESTS_ADMIN_KEY", "secret holding the KYC admin key")
	fs.StringVar(&cfg.CentreKeyName, "centre-key-name", "CONTRACT_TESTS_CENTRE_KEY", "secret holding the KYC centre key")

	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "Postgres DSN for account leases shared between runs (optional)")

	fs.StringVar(&cfg.EventsDriver, "events-driver", queue.DriverNone, "result events: kafka|stdio|none")
	fs.StringVar(&cfg.EventsTopic, "events-topic", queue.DefaultTopic, "result events topic")
	fs.StringVar(&brokersRaw, "kafka-brokers", "", "comma-separated Kafka brokers")

	fs.StringVar(&cfg.ReportBucket, "report-bucket", "", "S3 bucket receiving the report (optional)")
	fs.StringVar(&cfg.ReportPrefix, "report-prefix", "contract-tests", "S3 key prefix for reports")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.Node = strings.TrimSpace(cfg.Node)
	if cfg.Node == "" {
		return cfg, errors.New("--node is required")
	}
	if cfg.Parallel <= 0 {
		return cfg, errors.New("--parallel must be > 0")
	}
	if cfg.Timeout <= 0 || cfg.ScenarioTimeout <= 0 || cfg.ConfirmTimeout <= 0 || cfg.PollInterval <= 0 {
		return cfg, errors.New("--timeout, --scenario-timeout, --confirm-timeout and --poll-interval must be > 0")
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return cfg, fmt.Errorf("--log-level: %w", err)
	}

	switch cfg.KeysSource = strings.ToLower(strings.TrimSpace(cfg.KeysSource)); cfg.KeysSource {
	case secrets.SourceEnv, secrets.SourceAWS:
	default:
		return cfg, fmt.Errorf("--keys-source must be %s or %s", secrets.SourceEnv, secrets.SourceAWS)
	}

	cfg.KafkaBrokers = queue.SplitCommaList(brokersRaw)
	driver, err := queue.CheckDriver(cfg.EventsDriver, true)
	if err != nil {
		return cfg, fmt.Errorf("--events-driver: %w", err)
	}
	cfg.EventsDriver = driver
	if cfg.EventsDriver == queue.DriverKafka && len(cfg.KafkaBrokers) == 0 {
		return cfg, errors.New("--kafka-brokers is required for --events-driver=kafka")
	}
	if cfg.EventsDriver == queue.DriverStdio && cfg.OutputPath == "-" {
		return cfg, errors.New("--events-driver=stdio needs --output to be a file")
	}

	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.ReportBucket = strings.TrimSpace(cfg.ReportBucket)
	return cfg, nil
}

// loadSigners resolves the genesis keys. Unset secrets fall back to the development network keys.
func loadSigners(ctx context.Context, cfg config) (alpha, admin, centre eth.Signer, err error) {
	provider, err := secrets.New(ctx, cfg.KeysSource)
	if err != nil {
		return nil, nil, nil, err
	}
	signers := make([]eth.Signer, 3)
	for i, k := range []struct{ name, fallback string }{
		{cfg.AlphaKeyName, conformance.DevAlphaKey},
		{cfg.AdminKeyName, conformance.DevAdminKey},
		{cfg.CentreKeyName, conformance.DevCentreKey},
	} {
		raw, err := secrets.Lookup(ctx, provider, k.name, k.fallback)
		if err != nil {
			return nil, nil, nil, err
		}
		signer, err := eth.LoadSigner(k.name, raw)
		if err != nil {
			return nil, nil, nil, err
		}
		signers[i] = signer
	}
	return signers[0], signers[1], signers[2], nil
}

func loadABIs(dir string) (contracts.ABIs, error) {
	if dir == "" {
		return contracts.EmbeddedABIs()
	}
	return contracts.LoadABIDir(dir)
}

func archive(ctx context.Context, cfg config, rep *conformance.Report) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	store, err := blobstore.New(ctx, blobstore.Config{Driver: blobstore.DriverS3, Bucket: cfg.ReportBucket, Prefix: cfg.ReportPrefix})
	if err != nil {
		return err
	}
	_, err = conformance.ArchiveReport(ctx, store, rep)
	return err
}

func writeReport(path string, stdout io.Writer, rep *conformance.Report) error {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}

	if path == "-" {
		_, err = fmt.Fprintf(stdout, "%s\n", out)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "wrote report: %s\n", path)
	return err
}
