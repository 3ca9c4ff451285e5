package correlate

import (
	"fmt"
	"time"

	"vidpair/internal/model"
)

// Both role encodings normalize to the canonical layout, which sorts
// lexicographically. Instants are interpreted as UTC for both roles: the
// upload pipelines emit wall-clock time with no zone marker, and mixing
// zones across roles would skew the match window.
const (
	CanonicalTimestampLayout = "2006-01-02-15-04-05"
	primaryTimestampLayout   = "20060102-150405"
)

// NormalizeTimestamp converts a role-specific raw timestamp into the
// canonical YYYY-MM-DD-HH-MM-SS form. It is a pure function of its inputs.
func NormalizeTimestamp(raw string, role model.Role) (string, error) {
	t, err := TimestampInstant(raw, role)
	if err != nil {
		return "", err
	}
	return t.Format(CanonicalTimestampLayout), nil
}

// TimestampInstant interprets a role-specific raw timestamp as a UTC
// instant. Wrong digit counts and out-of-range fields both fail with
// ErrMalformedTimestamp.
func TimestampInstant(raw string, role model.Role) (time.Time, error) {
	layout := CanonicalTimestampLayout
	if role == model.RolePrimary {
		layout = primaryTimestampLayout
	}
	t, err := time.ParseInLocation(layout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (role %s)", ErrMalformedTimestamp, raw, role)
	}
	return t, nil
}
