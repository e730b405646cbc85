// Package queue publishes scenario result events to Kafka or to a line-oriented writer.
package queue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"
	DriverNone  = "none"

	DefaultTopic = "contract-tests.results"

	envKafkaTLS = "CONTRACT_TESTS_KAFKA_TLS"
)

var ErrInvalidConfig = errors.New("queue: invalid config")

// Publisher delivers keyed event payloads to a single topic.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

type Config struct {
	Driver string
	Topic  string

	// Kafka fields.
	Brokers      []string
	BatchTimeout time.Duration

	// Stdio fields. Defaults to stdout.
	Writer io.Writer
}

// CheckDriver normalizes driver and reports ErrInvalidConfig for unknown names. An empty driver
// means none, which is only accepted when allowNone is set.
func CheckDriver(driver string, allowNone bool) (string, error) {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "", DriverNone:
		if !allowNone {
			return "", fmt.Errorf("%w: driver %q publishes nothing", ErrInvalidConfig, driver)
		}
		return DriverNone, nil
	case DriverKafka, DriverStdio:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, driver)
	}
}

// NewPublisher creates the publisher for cfg.Driver. An empty driver means none.
func NewPublisher(cfg Config) (Publisher, error) {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	driver, err := CheckDriver(cfg.Driver, true)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverNone:
		return Discard{}, nil
	case DriverKafka:
		return newKafkaPublisher(cfg, topic)
	case DriverStdio:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return &linePublisher{w: w}, nil
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
}

// SplitCommaList splits a flag value like "a:9092, b:9092" dropping empty entries.
func SplitCommaList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func kafkaTLSEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKafkaTLS))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

func newKafkaPublisher(cfg Config, topic string) (Publisher, error) {
	brokers := SplitCommaList(strings.Join(cfg.Brokers, ","))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka requires at least one broker", ErrInvalidConfig)
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	if kafkaTLSEnabled() {
		w.Transport = &kafka.Transport{TLS: &tls.Config{MinVersion: tls.VersionTLS12}}
	}
	return &kafkaPublisher{writer: w}, nil
}

// Publish keys the record so all events of one run land on one partition in order.
func (p *kafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// linePublisher writes one payload per line. The key is not written.
type linePublisher struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *linePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	_, err := p.w.Write(buf)
	return err
}

func (p *linePublisher) Close() error { return nil }

type Discard struct{}

func (Discard) Publish(context.Context, string, []byte) error { return nil }
func (Discard) Close() error                                 { return nil }
