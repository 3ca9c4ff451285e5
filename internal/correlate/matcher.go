package correlate

import (
	"time"

	"vidpair/internal/model"
)

// SelectClosest picks the best partner for an arrival at instant among
// opposite-role candidates: unclaimed, within window of the instant, with
// the smallest absolute time difference. Ties break to the lowest canonical
// timestamp so the result does not depend on candidate order. Candidate
// instants are re-derived from each record's original timestamp and role;
// candidates whose stored timestamp no longer parses are skipped.
func SelectClosest(instant time.Time, candidates []model.ArrivalRecord, window time.Duration) (model.ArrivalRecord, bool) {
	var (
		best     model.ArrivalRecord
		bestDiff time.Duration
		found    bool
	)

	for _, c := range candidates {
		if c.Claimed() {
			continue
		}
		candidateInstant, err := TimestampInstant(c.OriginalTimestamp, c.Role)
		if err != nil {
			continue
		}
		diff := instant.Sub(candidateInstant)
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			continue
		}
		switch {
		case !found, diff < bestDiff:
			best, bestDiff, found = c, diff, true
		case diff == bestDiff && c.CanonicalTimestamp < best.CanonicalTimestamp:
			best = c
		}
	}
	return best, found
}
