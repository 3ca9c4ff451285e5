package correlate

import "context"

// MergePayload is the fire-and-forget merge job invocation payload. The
// JSON field names are the wire contract of the downstream merge function
// and must not change.
type MergePayload struct {
	RequestID           string `json:"requestId"`
	PrimaryArtifactID   string `json:"mainVideoKey"`
	CompanionArtifactID string `json:"translatorVideoKey"`
	Session             string `json:"roomName"`
}

// Runner launches the downstream merge job. A nil return means the
// invocation request was accepted by the job runner, not that the job
// finished; the engine never waits for completion and never retries.
type Runner interface {
	Invoke(ctx context.Context, payload MergePayload) error
}
