package event

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// Notification is one upload-completed event: the bucket and the object key
// that embeds session, role and timestamp.
type Notification struct {
	Bucket string
	Key    string
}

// ParseS3Event extracts upload notifications from a raw S3 event document,
// as delivered either to a Lambda or through an SQS queue subscription.
// Bucket test events ("s3:TestEvent") yield no notifications.
func ParseS3Event(body []byte) ([]Notification, error) {
	var probe struct {
		Event string `json:"Event"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if probe.Event == "s3:TestEvent" {
		return nil, nil
	}

	var ev events.S3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decoding s3 event: %w", err)
	}
	return FromS3Event(ev)
}

// FromS3Event converts decoded S3 event records into notifications.
// Object keys arrive URL-encoded and are decoded here.
func FromS3Event(ev events.S3Event) ([]Notification, error) {
	notifications := make([]Notification, 0, len(ev.Records))
	for _, rec := range ev.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decoding object key %q: %w", rec.S3.Object.Key, err)
		}
		notifications = append(notifications, Notification{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
		})
	}
	return notifications, nil
}
