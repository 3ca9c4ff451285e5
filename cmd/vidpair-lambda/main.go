package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"vidpair/internal/app"
	"vidpair/internal/config"
	"vidpair/internal/event"
	"vidpair/internal/model"
)

// Response reports the outcome of every record in the triggering event.
type Response struct {
	Outcomes []model.Outcome `json:"outcomes"`
}

// handler processes an S3 upload event. A fresh App per invocation keeps the
// handler stateless; all correlation state lives in the store.
func handler(ctx context.Context, ev events.S3Event) (Response, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return Response{}, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return Response{}, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("initializing app: %w", err)
	}
	defer a.Close()

	notifications, err := event.FromS3Event(ev)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	for _, n := range notifications {
		outcome := a.ProcessObject(ctx, n.Bucket, n.Key)
		resp.Outcomes = append(resp.Outcomes, outcome)
		if outcome.Code == model.OutcomeFailed && outcome.Retryable {
			// Surface the failure so the event source retries delivery.
			return resp, fmt.Errorf("processing %s: %s", n.Key, outcome.Reason)
		}
	}
	return resp, nil
}

func main() {
	lambda.Start(handler)
}
