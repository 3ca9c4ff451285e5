package correlate

import (
	"context"

	"vidpair/internal/model"
)

// InsertOutcome reports whether InsertIfAbsent created a new record.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	AlreadyExists
)

func (o InsertOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "already_exists"
}

// Store is the durable correlation store, keyed by (session, canonical
// timestamp) with a secondary index by role. All cross-invocation
// coordination goes through it: nothing else in the engine is safe to
// assume as mutually exclusive.
type Store interface {
	// InsertIfAbsent persists the record unless one already exists for its
	// (session, canonical timestamp). Must be atomic per key: concurrent
	// inserts for the same key resolve to exactly one Inserted.
	InsertIfAbsent(ctx context.Context, rec model.ArrivalRecord) (InsertOutcome, error)

	// QueryByRoleAndSession returns the non-expired records of one role
	// within a session. Ordering is not significant; the matcher re-sorts
	// by time distance. Implementations exclude expired records either via
	// native TTL or by filtering at read time.
	QueryByRoleAndSession(ctx context.Context, role model.Role, session string) ([]model.ArrivalRecord, error)

	// ClaimPair atomically marks the two records of a session as matched
	// with each other. It succeeds only if both are currently unclaimed;
	// exactly one of any set of racing claimants wins. Dispatch is gated
	// on claim success.
	ClaimPair(ctx context.Context, session, tsA, tsB string) (bool, error)

	// ReleasePair undoes a claim made with the same arguments, so a failed
	// dispatch does not permanently bind the pair. It releases only the
	// exact pairing: records claimed by someone else are left alone.
	ReleasePair(ctx context.Context, session, tsA, tsB string) error

	// Close releases the underlying connection, if any.
	Close() error
}
