package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"vidpair/internal/config"
)

// awsConfigCache loads the shared AWS SDK configuration at most once. Not
// every command needs AWS; loading is deferred until a component asks.
type awsConfigCache struct {
	settings config.AWSConfig
	loaded   *aws.Config
}

func newAWSConfigCache(settings config.AWSConfig) *awsConfigCache {
	return &awsConfigCache{settings: settings}
}

// get returns the cached SDK configuration, loading it on first use.
// Explicit credentials in the config file take precedence over the ambient
// credential chain.
func (c *awsConfigCache) get(ctx context.Context) (*aws.Config, error) {
	if c.loaded != nil {
		return c.loaded, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if c.settings.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.settings.Region))
	}
	if c.settings.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.settings.AccessKeyID, c.settings.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	c.loaded = &cfg
	return c.loaded, nil
}
