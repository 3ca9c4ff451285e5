package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vidpair/internal/event"
	"vidpair/internal/model"
)

// receiveBackoff is how long the serve loop waits after a failed receive
// before polling again.
const receiveBackoff = 5 * time.Second

// SQSAPI is the subset of the SQS client the serve loop uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Serve long-polls the configured SQS queue for upload notifications and runs
// each one through the correlation pipeline. It returns when ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Queue.URL == "" {
		return fmt.Errorf("queue url not configured")
	}
	awsCfg, err := a.awsCfg.get(ctx)
	if err != nil {
		return err
	}
	return a.serve(ctx, sqs.NewFromConfig(*awsCfg))
}

func (a *App) serve(ctx context.Context, client SQSAPI) error {
	a.logger.Info("serving", "queue", a.cfg.Queue.URL)
	for {
		out, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(a.cfg.Queue.URL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     a.cfg.Queue.WaitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			a.logger.Error("receiving messages failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveBackoff):
			}
			continue
		}

		for _, msg := range out.Messages {
			remove := a.handleMessage(ctx, aws.ToString(msg.Body))
			if !remove {
				// Leave the message for redelivery after the visibility
				// timeout expires.
				continue
			}
			_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(a.cfg.Queue.URL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil && ctx.Err() == nil {
				a.logger.Error("deleting message failed", "error", err)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleMessage processes one queue message and reports whether it should be
// deleted. Undecodable messages are deleted: redelivery cannot fix them.
// Retryable failures keep the message on the queue.
func (a *App) handleMessage(ctx context.Context, body string) bool {
	notifications, err := event.ParseS3Event([]byte(body))
	if err != nil {
		a.logger.Error("dropping undecodable message", "error", err)
		return true
	}

	remove := true
	for _, n := range notifications {
		outcome := a.ProcessObject(ctx, n.Bucket, n.Key)
		if outcome.Code == model.OutcomeFailed && outcome.Retryable {
			remove = false
		}
	}
	return remove
}
