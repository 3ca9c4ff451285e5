package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"vidpair/internal/config"
	"vidpair/internal/correlate"
	"vidpair/internal/model"
	"vidpair/internal/runner"
	"vidpair/internal/store"
)

// App is the application layer between the CLI and the correlation service.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the store lifecycle on Close.
type App struct {
	cfg     *config.Config
	store   correlate.Store
	runner  correlate.Runner
	service *correlate.Service
	logger  *slogAdapter
	logFile *os.File
	awsCfg  *awsConfigCache
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	awsCfg := newAWSConfigCache(cfg.AWS)

	clock := correlate.RealClock{}

	var storeAWS *aws.Config
	if cfg.Store.Type == "dynamodb" {
		storeAWS, err = awsCfg.get(ctx)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
	}
	st, err := store.NewStoreFromConfig(cfg.Store, storeAWS, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	var runnerAWS *aws.Config
	if cfg.Runner.Type == "lambda" || cfg.Runner.Type == "ecs" {
		runnerAWS, err = awsCfg.get(ctx)
		if err != nil {
			st.Close()
			logFile.Close()
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
	}
	rn, err := runner.NewRunnerFromConfig(cfg.Runner, runnerAWS)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating runner: %w", err)
	}

	adapter := &slogAdapter{l: logger}
	svc := correlate.NewService(st, rn, adapter, clock, correlate.UUIDGenerator{},
		cfg.RetentionWindow(), cfg.MatchWindow())

	return &App{
		cfg:     cfg,
		store:   st,
		runner:  rn,
		service: svc,
		logger:  adapter,
		logFile: logFile,
		awsCfg:  awsCfg,
	}, nil
}

// ProcessObject runs one object key through the correlation pipeline.
// The bucket is informational; all correlation state lives in the key.
func (a *App) ProcessObject(ctx context.Context, bucket, key string) model.Outcome {
	a.logger.Info("processing object", "bucket", bucket, "key", key)
	return a.service.Ingest(ctx, key)
}

// ListRecords returns all live arrival records for a session, both roles,
// ordered by canonical timestamp.
func (a *App) ListRecords(ctx context.Context, session string) ([]model.ArrivalRecord, error) {
	var records []model.ArrivalRecord
	for _, role := range []model.Role{model.RolePrimary, model.RoleCompanion} {
		recs, err := a.store.QueryByRoleAndSession(ctx, role, session)
		if err != nil {
			return nil, fmt.Errorf("querying %s records: %w", role, err)
		}
		records = append(records, recs...)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CanonicalTimestamp != records[j].CanonicalTimestamp {
			return records[i].CanonicalTimestamp < records[j].CanonicalTimestamp
		}
		return records[i].Role < records[j].Role
	})
	return records, nil
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
