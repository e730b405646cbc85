// Package secrets resolves named key material for the genesis accounts.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	SourceEnv = "env"
	SourceAWS = "aws"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// New builds the provider for source. An empty source means env.
func New(ctx context.Context, source string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", SourceEnv:
		return Env{}, nil
	case SourceAWS:
		return NewAWS(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, source)
	}
}

type secretsManager interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWS reads secrets from AWS Secrets Manager using the default credential chain.
type AWS struct {
	client secretsManager
}

func NewAWS(ctx context.Context) (*AWS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client secretsManager) (*AWS, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWS{client: client}, nil
}

func (p *AWS) Get(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty secret name", ErrInvalidConfig)
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return "", fmt.Errorf("secrets: get %q: %w", name, err)
	}
	if out.SecretString != nil {
		if v := strings.TrimSpace(*out.SecretString); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(string(out.SecretBinary)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: secret %q is empty", ErrNotFound, name)
}

// Env reads secrets from environment variables.
type Env struct{}

func (Env) Get(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty env name", ErrInvalidConfig)
	}
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, name)
	}
	return v, nil
}

// Lookup resolves name, returning fallback when the provider has no value for it. Other errors
// are returned unchanged. An empty name always yields fallback.
func Lookup(ctx context.Context, p Provider, name, fallback string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return fallback, nil
	}
	v, err := p.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return v, err
}
