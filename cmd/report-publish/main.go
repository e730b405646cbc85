// Command report-publish re-publishes the per-scenario result events of saved conformance
// reports, for runs that had no event sink or whose sink was down.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/carbontec-pub-org/contract-tests/internal/blobstore"
	"github.com/carbontec-pub-org/contract-tests/internal/conformance"
	"github.com/carbontec-pub-org/contract-tests/internal/queue"
)

type stringListFlag []string

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("value must not be empty")
	}
	*f = append(*f, v)
	return nil
}

func main() {
	if err := runMain(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMain(args []string, stdin io.Reader, stdout io.Writer) error {
	var reportFiles, runIDs stringListFlag
	fs := flag.NewFlagSet("report-publish", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	eventsDriver := fs.String("events-driver", queue.DriverKafka, "events driver: kafka|stdio")
	kafkaBrokers := fs.String("kafka-brokers", "", "comma-separated kafka brokers (required for kafka)")
	topic := fs.String("events-topic", queue.DefaultTopic, "result events topic")
	fs.Var(&reportFiles, "report-file", "report file path (repeatable)")
	fs.Var(&runIDs, "run-id", "run id of an archived report (repeatable, needs --report-bucket)")
	bucket := fs.String("report-bucket", "", "S3 bucket holding archived reports")
	prefix := fs.String("report-prefix", "contract-tests", "key prefix of archived reports")
	failedOnly := fs.Bool("failed-only", false, "publish only failed scenarios")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if len(runIDs) > 0 && strings.TrimSpace(*bucket) == "" {
		return errors.New("--run-id requires --report-bucket")
	}
	driver, err := queue.CheckDriver(*eventsDriver, false)
	if err != nil {
		return fmt.Errorf("--events-driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var store blobstore.Store
	if len(runIDs) > 0 {
		s, err := blobstore.New(ctx, blobstore.Config{Driver: blobstore.DriverS3, Bucket: *bucket, Prefix: *prefix})
		if err != nil {
			return err
		}
		store = s
	}
	reports, err := loadReports(ctx, reportFiles, runIDs, store, stdin)
	if err != nil {
		return err
	}

	publisher, err := queue.NewPublisher(queue.Config{
		Driver:  driver,
		Topic:   *topic,
		Brokers: queue.SplitCommaList(*kafkaBrokers),
		Writer:  stdout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	for _, rep := range reports {
		if err := publishReport(ctx, publisher, rep, *failedOnly); err != nil {
			return err
		}
	}
	return nil
}

func publishReport(ctx context.Context, p queue.Publisher, rep *conformance.Report, failedOnly bool) error {
	for _, ev := range rep.Events() {
		if failedOnly && ev.Status != conformance.StatusFailed {
			continue
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := p.Publish(ctx, rep.RunID, raw); err != nil {
			return fmt.Errorf("publish %s/%s: %w", rep.RunID, ev.Name, err)
		}
	}
	return nil
}

// loadReports reads reports from files and archived run ids, falling back to a single report on
// stdin when neither is given.
func loadReports(ctx context.Context, files, runIDs []string, store blobstore.Store, stdin io.Reader) ([]*conformance.Report, error) {
	reports := make([]*conformance.Report, 0, len(files)+len(runIDs))
	for _, filePath := range files {
		b, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read report file %q: %w", filePath, err)
		}
		rep, err := decodeReport(b)
		if err != nil {
			return nil, fmt.Errorf("report file %q: %w", filePath, err)
		}
		reports = append(reports, rep)
	}
	for _, id := range runIDs {
		if store == nil {
			return nil, errors.New("--run-id requires --report-bucket")
		}
		b, err := store.Get(ctx, blobstore.ReportKey(id))
		if err != nil {
			return nil, fmt.Errorf("fetch report %q: %w", id, err)
		}
		rep, err := decodeReport(b)
		if err != nil {
			return nil, fmt.Errorf("report %q: %w", id, err)
		}
		reports = append(reports, rep)
	}
	if len(reports) > 0 {
		return reports, nil
	}

	if stdin == nil {
		return nil, errors.New("report is required via --report-file, --run-id, or stdin")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin report: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.New("report is required via --report-file, --run-id, or stdin")
	}
	rep, err := decodeReport(b)
	if err != nil {
		return nil, fmt.Errorf("stdin report: %w", err)
	}
	return []*conformance.Report{rep}, nil
}

func decodeReport(b []byte) (*conformance.Report, error) {
	var rep conformance.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if rep.Version != conformance.ReportVersion {
		return nil, fmt.Errorf("unsupported version %q", rep.Version)
	}
	if strings.TrimSpace(rep.RunID) == "" {
		return nil, errors.New("missing run_id")
	}
	return &rep, nil
}
