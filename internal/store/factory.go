package store

import (
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"vidpair/internal/config"
	"vidpair/internal/correlate"
)

// NewStoreFromConfig creates a Store implementation based on the store
// config type. awsCfg may be nil for the non-AWS backends.
func NewStoreFromConfig(cfg config.StoreConfig, awsCfg *aws.Config, clock correlate.Clock) (correlate.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(clock), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "correlation.db"), clock)
	case "dynamodb":
		if cfg.Table == "" {
			return nil, fmt.Errorf("table required for dynamodb store")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("aws configuration required for dynamodb store")
		}
		client := dynamodb.NewFromConfig(*awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
		return NewDynamoStore(client, cfg.Table, clock), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
