package model

import "time"

// Role identifies which of the two upload pipelines produced an artifact.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleCompanion Role = "companion"
)

// Opposite returns the partner role the matcher searches.
func (r Role) Opposite() Role {
	if r == RolePrimary {
		return RoleCompanion
	}
	return RolePrimary
}

// ArrivalRecord is the durable record of one uploaded artifact.
// (Session, CanonicalTimestamp) is the record's unique key. Records are
// never mutated after insert except for the MatchedWith claim, and they
// disappear from queries once Expiry passes.
type ArrivalRecord struct {
	Session            string    // logical grouping key shared by a pair
	CanonicalTimestamp string    // YYYY-MM-DD-HH-MM-SS, lexicographically sortable
	OriginalTimestamp  string    // as encoded in the artifact identifier
	Role               Role      // which normalization rule applied
	ArtifactID         string    // full storage key of the uploaded object
	ArrivalTime        time.Time // when the record was created
	Expiry             time.Time // ArrivalTime + retention window
	MatchedWith        string    // canonical timestamp of the claimed partner, empty if unclaimed
}

// Claimed reports whether this record has already been paired.
func (r ArrivalRecord) Claimed() bool { return r.MatchedWith != "" }
