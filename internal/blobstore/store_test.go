package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type fakeS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3Client {
	return &fakeS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = b
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Driver: DriverMemory}},
		{name: "unsupported driver", cfg: Config{Driver: "gcs"}, wantErr: true},
		{name: "s3 missing bucket", cfg: Config{Driver: DriverS3, S3Client: newFakeS3()}, wantErr: true},
		{name: "default driver is s3", cfg: Config{Bucket: "reports", S3Client: newFakeS3()}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(context.Background(), tc.cfg)
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v err=%v", tc.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestS3Store_PutGetWithPrefix(t *testing.T) {
	t.Parallel()

	client := newFakeS3()
	st, err := New(context.Background(), Config{Bucket: "reports", Prefix: "/nightly/", S3Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	key := ReportKey("2f1c")
	if err := st.Put(ctx, key, []byte(`{"passed":3}`), ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const full = "reports/nightly/runs/2f1c/report.json"
	if string(client.objects[full]) != `{"passed":3}` {
		t.Fatalf("stored objects: %v", client.objects)
	}
	if client.types[full] != ContentTypeJSON {
		t.Fatalf("content type: %q", client.types[full])
	}

	got, err := st.Get(ctx, key)
	if err != nil || string(got) != `{"passed":3}` {
		t.Fatalf("Get: %q %v", got, err)
	}
	if _, err := st.Get(ctx, ReportKey("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	client.putErr = errors.New("AccessDenied")
	if err := st.Put(ctx, key, nil, ""); err == nil {
		t.Fatalf("expected put error")
	}
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	t.Parallel()

	st, _ := New(context.Background(), Config{Driver: DriverMemory})
	ctx := context.Background()
	payload := []byte("report")
	if err := st.Put(ctx, "a.json", payload, ContentTypeJSON); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[0] = 'X'
	got, err := st.Get(ctx, "/a.json")
	if err != nil || string(got) != "report" {
		t.Fatalf("Get: %q %v", got, err)
	}
}

func TestInvalidKeys(t *testing.T) {
	t.Parallel()

	st, _ := New(context.Background(), Config{Driver: DriverMemory})
	for _, k := range []string{"", "/", " a", "a\nb"} {
		if err := st.Put(context.Background(), k, nil, ""); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", k, err)
		}
	}
}
