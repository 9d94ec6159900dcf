package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/kopimap/kopimap-api/internal/domain"
)

// secretsAPI is the consumer interface over the Secrets Manager client (ISP).
type secretsAPI interface {
	GetSecretValue(
		ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSConfig holds Secrets Manager connection settings. Static keys are
// optional; the default credential chain applies when they are empty.
type AWSConfig struct {
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// AWS reads secrets from AWS Secrets Manager. Names are prefixed with
// Prefix (e.g. "kopimap/prod/").
type AWS struct {
	api    secretsAPI
	prefix string
}

// NewAWS creates a Secrets Manager provider.
func NewAWS(ctx context.Context, cfg AWSConfig) (*AWS, error) {
	region := cfg.Region
	if region == "" {
		region = "ap-southeast-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewAWSWithClient(client, cfg.Prefix), nil
}

// NewAWSWithClient creates a provider over an existing client.
func NewAWSWithClient(api secretsAPI, prefix string) *AWS {
	return &AWS{api: api, prefix: prefix}
}

// Lookup fetches the current value of a secret.
func (a *AWS) Lookup(ctx context.Context, name string) (string, error) {
	id := a.prefix + name
	out, err := a.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("secret %q: %w", id, domain.ErrSecretNotFound)
		}
		return "", fmt.Errorf("get secret %q: %w", id, err)
	}

	switch {
	case out.SecretString != nil && *out.SecretString != "":
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("secret %q is empty: %w", id, domain.ErrSecretNotFound)
	}
}
