package correlate

import (
	"regexp"
	"strings"

	"vidpair/internal/model"
)

// Storage key prefixes that determine an artifact's role.
const (
	PrimaryPrefix   = "main-room"
	CompanionPrefix = "translater" // sic: the companion pipeline spells it this way
)

var (
	// e.g. main-room/test22_20250810-062738.mp4
	primaryName = regexp.MustCompile(`^(.+)_(\d{8}-\d{6})\.mp4$`)
	// e.g. translater/test22-observer_2025-08-10-07-08-49.mp4
	companionName = regexp.MustCompile(`^(.+)-observer_(\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2})\.mp4$`)
)

// ParsedIdentifier is the decomposition of an artifact storage key.
type ParsedIdentifier struct {
	Session      string
	RawTimestamp string
	Role         model.Role
}

// ParseIdentifier extracts session, raw timestamp and role from an artifact
// storage key. The leading path segment selects the role; the file name must
// then match that role's naming pattern. A false return means the key belongs
// to no known pipeline and the event must be ignored without side effects.
func ParseIdentifier(key string) (ParsedIdentifier, bool) {
	segments := strings.Split(key, "/")
	if len(segments) < 2 {
		return ParsedIdentifier{}, false
	}
	prefix := segments[0]
	name := segments[len(segments)-1]

	switch prefix {
	case PrimaryPrefix:
		if m := primaryName.FindStringSubmatch(name); m != nil {
			return ParsedIdentifier{Session: m[1], RawTimestamp: m[2], Role: model.RolePrimary}, true
		}
	case CompanionPrefix:
		if m := companionName.FindStringSubmatch(name); m != nil {
			return ParsedIdentifier{Session: m[1], RawTimestamp: m[2], Role: model.RoleCompanion}, true
		}
	}
	return ParsedIdentifier{}, false
}
