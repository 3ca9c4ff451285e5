package correlate

import "errors"

// Failure taxonomy for ingestion. An unparseable identifier is not part of
// it: ParseIdentifier reports that with a false ok, and the handler ignores
// the event without side effects.
var (
	// ErrMalformedTimestamp means a parsed identifier carried a timestamp
	// with wrong digit counts or out-of-range fields. Fatal to the
	// invocation; no record is written.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrStoreUnavailable means the correlation store rejected a write.
	// Fatal to the invocation; the notification source is relied upon to
	// redeliver.
	ErrStoreUnavailable = errors.New("correlation store unavailable")

	// ErrDispatchRejected means the job runner refused the merge
	// invocation. The arrival is already durable, so a later partner
	// arrival or a replay can still match it.
	ErrDispatchRejected = errors.New("merge dispatch rejected")
)
