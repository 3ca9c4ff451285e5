package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vidpair/internal/correlate"
	"vidpair/internal/model"
)

// ReplayResult summarizes one replay pass over a bucket.
type ReplayResult struct {
	Scanned    int
	Dispatched int
	Awaiting   int
	Ignored    int
	Failed     int
}

// Replay scans the bucket under the given key prefixes and re-ingests every
// object, re-driving matches that were missed — after an outage, a dispatch
// failure, or a dropped notification. Ingestion is idempotent, so replaying
// already-processed objects is safe. With no prefixes, both role prefixes
// are scanned.
func (a *App) Replay(ctx context.Context, bucket string, prefixes []string) (ReplayResult, error) {
	awsCfg, err := a.awsCfg.get(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	return a.replay(ctx, s3.NewFromConfig(*awsCfg), bucket, prefixes)
}

func (a *App) replay(ctx context.Context, client s3.ListObjectsV2APIClient, bucket string, prefixes []string) (ReplayResult, error) {
	if len(prefixes) == 0 {
		prefixes = []string{correlate.PrimaryPrefix + "/", correlate.CompanionPrefix + "/"}
	}

	var result ReplayResult
	for _, prefix := range prefixes {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return result, fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
			}
			for _, obj := range page.Contents {
				result.Scanned++
				outcome := a.ProcessObject(ctx, bucket, aws.ToString(obj.Key))
				switch outcome.Code {
				case model.OutcomeMatchedAndDispatched:
					result.Dispatched++
				case model.OutcomeRecordedAwaitingPartner:
					result.Awaiting++
				case model.OutcomeIgnored:
					result.Ignored++
				default:
					result.Failed++
				}
			}
		}
	}

	a.logger.Info("replay complete", "bucket", bucket,
		"scanned", result.Scanned, "dispatched", result.Dispatched,
		"awaiting", result.Awaiting, "ignored", result.Ignored, "failed", result.Failed)
	return result, nil
}
