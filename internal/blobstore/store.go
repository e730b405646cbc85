// Package blobstore archives run reports in S3 or in memory.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	ContentTypeJSON = "application/json"

	maxGetSize int64 = 16 << 20
)

var (
	ErrInvalidConfig = errors.New("blobstore: invalid config")
	ErrInvalidKey    = errors.New("blobstore: invalid key")
	ErrNotFound      = errors.New("blobstore: not found")
	ErrTooLarge      = errors.New("blobstore: object too large")
)

type Store interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type Config struct {
	Driver string
	Prefix string

	// S3 fields. A nil client is built from the default AWS config.
	Bucket   string
	S3Client S3Client
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func New(ctx context.Context, cfg Config) (Store, error) {
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory:
		return &memoryStore{prefix: prefix, objects: make(map[string][]byte)}, nil
	case "", DriverS3:
		bucket := strings.TrimSpace(cfg.Bucket)
		if bucket == "" {
			return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
		}
		client := cfg.S3Client
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
			}
			client = s3.NewFromConfig(awsCfg)
		}
		return &s3Store{client: client, bucket: bucket, prefix: prefix}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// ReportKey is the object key of a run report.
func ReportKey(runID string) string {
	return "runs/" + runID + "/report.json"
}

func objectKey(prefix, key string) (string, error) {
	if key != strings.TrimSpace(key) {
		return "", fmt.Errorf("%w: surrounding whitespace", ErrInvalidKey)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: control character", ErrInvalidKey)
		}
	}
	if prefix == "" {
		return key, nil
	}
	return prefix + "/" + key, nil
}

type memoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, payload []byte, _ string) error {
	full, err := objectKey(m.prefix, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[full] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	full, err := objectKey(m.prefix, key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[full]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

type s3Store struct {
	client S3Client
	bucket string
	prefix string
}

func (s *s3Store) Put(ctx context.Context, key string, payload []byte, contentType string) error {
	full, err := objectKey(s.prefix, key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
		Body:   bytes.NewReader(payload),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("blobstore/s3: put %q: %w", full, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := objectKey(s.prefix, key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("blobstore/s3: get %q: %w", full, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxGetSize+1))
	if err != nil {
		return nil, fmt.Errorf("blobstore/s3: read %q: %w", full, err)
	}
	if int64(len(data)) > maxGetSize {
		return nil, fmt.Errorf("%w: %q", ErrTooLarge, full)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "404":
		return true
	default:
		return false
	}
}
