package model

// OutcomeCode classifies the result of processing one upload notification.
type OutcomeCode string

const (
	OutcomeIgnored                 OutcomeCode = "ignored"
	OutcomeRecordedAwaitingPartner OutcomeCode = "recorded_awaiting_partner"
	OutcomeMatchedAndDispatched    OutcomeCode = "matched_and_dispatched"
	OutcomeMatchedDispatchFailed   OutcomeCode = "matched_dispatch_failed"
	OutcomeFailed                  OutcomeCode = "failed"
)

// Outcome is the structured result of one ingestion. The handler always
// returns one, even on failure paths; callers use it for logging and
// monitoring and to decide whether a notification may be redelivered.
type Outcome struct {
	Code                OutcomeCode `json:"code"`
	Session             string      `json:"session,omitempty"`
	Role                Role        `json:"role,omitempty"`
	CanonicalTimestamp  string      `json:"canonicalTimestamp,omitempty"`
	PrimaryArtifactID   string      `json:"primaryArtifactId,omitempty"`
	CompanionArtifactID string      `json:"companionArtifactId,omitempty"`
	Reason              string      `json:"reason,omitempty"`
	Retryable           bool        `json:"retryable,omitempty"`
}
