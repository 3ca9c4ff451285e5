package correlate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vidpair/internal/correlate"
	"vidpair/internal/model"
	"vidpair/internal/runner"
	"vidpair/internal/store"
	"vidpair/internal/testutil"
)

const (
	primaryKey   = "main-room/test22_20250810-062738.mp4"
	companionKey = "translater/test22-observer_2025-08-10-06-30-00.mp4"
)

// flakyStore wraps a real store with per-operation error injection.
type flakyStore struct {
	correlate.Store
	insertErr error
	queryErr  error
	claimErr  error
}

func (s *flakyStore) InsertIfAbsent(ctx context.Context, rec model.ArrivalRecord) (correlate.InsertOutcome, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.Store.InsertIfAbsent(ctx, rec)
}

func (s *flakyStore) QueryByRoleAndSession(ctx context.Context, role model.Role, session string) ([]model.ArrivalRecord, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.Store.QueryByRoleAndSession(ctx, role, session)
}

func (s *flakyStore) ClaimPair(ctx context.Context, session, tsA, tsB string) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	return s.Store.ClaimPair(ctx, session, tsA, tsB)
}

type fixture struct {
	service *correlate.Service
	store   *store.MemoryStore
	flaky   *flakyStore
	runner  *runner.MemoryRunner
	clock   *testutil.StubClock
}

func newFixture() *fixture {
	clock := testutil.FixedClock()
	st := store.NewMemoryStore(clock)
	flaky := &flakyStore{Store: st}
	rn := runner.NewMemoryRunner()
	svc := correlate.NewService(flaky, rn, correlate.NewNopLogger(), clock,
		testutil.NewStubIDGenerator(), 24*time.Hour, 15*time.Minute)
	return &fixture{service: svc, store: st, flaky: flaky, runner: rn, clock: clock}
}

func (f *fixture) liveRecords(t *testing.T, session string) []model.ArrivalRecord {
	t.Helper()
	var all []model.ArrivalRecord
	for _, role := range []model.Role{model.RolePrimary, model.RoleCompanion} {
		recs, err := f.store.QueryByRoleAndSession(context.Background(), role, session)
		if err != nil {
			t.Fatalf("QueryByRoleAndSession() error = %v", err)
		}
		all = append(all, recs...)
	}
	return all
}

func TestService_Ingest_IgnoresUnrecognizedKey(t *testing.T) {
	f := newFixture()

	outcome := f.service.Ingest(context.Background(), "uploads/whatever.mp4")

	if outcome.Code != model.OutcomeIgnored {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeIgnored)
	}
	if got := f.liveRecords(t, "whatever"); len(got) != 0 {
		t.Errorf("store has %d record(s), want 0", len(got))
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}

func TestService_Ingest_MalformedTimestampFails(t *testing.T) {
	f := newFixture()

	// Matches the primary naming pattern but month 13 does not exist.
	outcome := f.service.Ingest(context.Background(), "main-room/test22_20251310-062738.mp4")

	if outcome.Code != model.OutcomeFailed {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeFailed)
	}
	if outcome.Retryable {
		t.Error("Retryable = true, want false for malformed timestamp")
	}
	if got := f.liveRecords(t, "test22"); len(got) != 0 {
		t.Errorf("store has %d record(s), want 0", len(got))
	}
}

func TestService_Ingest_FirstArrivalAwaitsPartner(t *testing.T) {
	f := newFixture()

	outcome := f.service.Ingest(context.Background(), primaryKey)

	if outcome.Code != model.OutcomeRecordedAwaitingPartner {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
	}
	if outcome.Session != "test22" {
		t.Errorf("Session = %q, want %q", outcome.Session, "test22")
	}
	if outcome.CanonicalTimestamp != "2025-08-10-06-27-38" {
		t.Errorf("CanonicalTimestamp = %q, want %q", outcome.CanonicalTimestamp, "2025-08-10-06-27-38")
	}

	recs := f.liveRecords(t, "test22")
	if len(recs) != 1 {
		t.Fatalf("store has %d record(s), want 1", len(recs))
	}
	rec := recs[0]
	if rec.ArtifactID != primaryKey {
		t.Errorf("ArtifactID = %q, want %q", rec.ArtifactID, primaryKey)
	}
	if want := f.clock.Now().Add(24 * time.Hour); !rec.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", rec.Expiry, want)
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}

func TestService_Ingest_PairDispatches(t *testing.T) {
	tests := []struct {
		name          string
		first, second string
	}{
		{"primary then companion", primaryKey, companionKey},
		{"companion then primary", companionKey, primaryKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			if outcome := f.service.Ingest(context.Background(), tt.first); outcome.Code != model.OutcomeRecordedAwaitingPartner {
				t.Fatalf("first Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
			}

			outcome := f.service.Ingest(context.Background(), tt.second)
			if outcome.Code != model.OutcomeMatchedAndDispatched {
				t.Fatalf("second Code = %s, want %s", outcome.Code, model.OutcomeMatchedAndDispatched)
			}
			if outcome.PrimaryArtifactID != primaryKey {
				t.Errorf("PrimaryArtifactID = %q, want %q", outcome.PrimaryArtifactID, primaryKey)
			}
			if outcome.CompanionArtifactID != companionKey {
				t.Errorf("CompanionArtifactID = %q, want %q", outcome.CompanionArtifactID, companionKey)
			}

			invocations := f.runner.Invocations()
			if len(invocations) != 1 {
				t.Fatalf("runner has %d invocation(s), want 1", len(invocations))
			}
			payload := invocations[0]
			if payload.PrimaryArtifactID != primaryKey {
				t.Errorf("payload.PrimaryArtifactID = %q, want %q", payload.PrimaryArtifactID, primaryKey)
			}
			if payload.CompanionArtifactID != companionKey {
				t.Errorf("payload.CompanionArtifactID = %q, want %q", payload.CompanionArtifactID, companionKey)
			}
			if payload.Session != "test22" {
				t.Errorf("payload.Session = %q, want %q", payload.Session, "test22")
			}
			if payload.RequestID == "" {
				t.Error("payload.RequestID is empty")
			}

			// Both records now carry the claim.
			for _, rec := range f.liveRecords(t, "test22") {
				if !rec.Claimed() {
					t.Errorf("record %s unclaimed after dispatch", rec.CanonicalTimestamp)
				}
			}
		})
	}
}

func TestService_Ingest_DuplicateNotificationsDispatchOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey)
	f.service.Ingest(ctx, companionKey)

	// Redeliveries of both sides after the pair is claimed.
	for _, key := range []string{primaryKey, companionKey} {
		outcome := f.service.Ingest(ctx, key)
		if outcome.Code != model.OutcomeRecordedAwaitingPartner {
			t.Errorf("redelivered %s Code = %s, want %s", key, outcome.Code, model.OutcomeRecordedAwaitingPartner)
		}
	}

	if got := f.runner.Invocations(); len(got) != 1 {
		t.Errorf("runner has %d invocation(s), want 1", len(got))
	}
}

func TestService_Ingest_OutOfWindowStaysUnmatched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey) // 06:27:38

	// 16 minutes past the primary, outside the 15 minute window.
	outcome := f.service.Ingest(ctx, "translater/test22-observer_2025-08-10-06-43-38.mp4")
	if outcome.Code != model.OutcomeRecordedAwaitingPartner {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}

func TestService_Ingest_ExpiredPartnerNotMatched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey)
	f.clock.Advance(25 * time.Hour)

	outcome := f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeRecordedAwaitingPartner {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}

func TestService_Ingest_DispatchFailureReleasesClaim(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey)
	f.runner.FailWith(errors.New("throttled"))

	outcome := f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeMatchedDispatchFailed {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeMatchedDispatchFailed)
	}
	if outcome.PrimaryArtifactID != primaryKey || outcome.CompanionArtifactID != companionKey {
		t.Errorf("pair = (%q, %q), want (%q, %q)",
			outcome.PrimaryArtifactID, outcome.CompanionArtifactID, primaryKey, companionKey)
	}

	// The claim is released, so a replayed notification can re-drive the pair.
	for _, rec := range f.liveRecords(t, "test22") {
		if rec.Claimed() {
			t.Errorf("record %s still claimed after failed dispatch", rec.CanonicalTimestamp)
		}
	}

	f.runner.FailWith(nil)
	outcome = f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeMatchedAndDispatched {
		t.Fatalf("replay Code = %s, want %s", outcome.Code, model.OutcomeMatchedAndDispatched)
	}
	if got := f.runner.Invocations(); len(got) != 1 {
		t.Errorf("runner has %d invocation(s), want 1", len(got))
	}
}

func TestService_Ingest_StoreInsertFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.flaky.insertErr = errors.New("connection refused")

	outcome := f.service.Ingest(context.Background(), primaryKey)

	if outcome.Code != model.OutcomeFailed {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeFailed)
	}
	if !outcome.Retryable {
		t.Error("Retryable = false, want true for store failure")
	}
	if outcome.Reason == "" {
		t.Error("Reason is empty")
	}
}

func TestService_Ingest_QueryFailureDegradesToAwaiting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey)
	f.flaky.queryErr = errors.New("read timeout")

	// The partner is present, but the lookup keeps failing; the arrival is
	// still recorded and reported as awaiting.
	outcome := f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeRecordedAwaitingPartner {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
	}

	recs := f.liveRecords(t, "test22")
	if len(recs) != 2 {
		t.Errorf("store has %d record(s), want 2", len(recs))
	}

	// Once reads recover, a redelivery completes the pair.
	f.flaky.queryErr = nil
	outcome = f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeMatchedAndDispatched {
		t.Fatalf("recovered Code = %s, want %s", outcome.Code, model.OutcomeMatchedAndDispatched)
	}
}

func TestService_Ingest_ClaimFailureIsRetryable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey)
	f.flaky.claimErr = errors.New("transaction aborted")

	outcome := f.service.Ingest(ctx, companionKey)
	if outcome.Code != model.OutcomeFailed {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeFailed)
	}
	if !outcome.Retryable {
		t.Error("Retryable = false, want true for claim failure")
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}

func TestService_Ingest_ClosestOfSeveralCandidates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Three companions, the 06:30:00 one closest to the primary's 06:27:38.
	for _, key := range []string{
		"translater/test22-observer_2025-08-10-06-15-00.mp4",
		"translater/test22-observer_2025-08-10-06-30-00.mp4",
		"translater/test22-observer_2025-08-10-06-40-00.mp4",
	} {
		f.service.Ingest(ctx, key)
	}

	outcome := f.service.Ingest(ctx, primaryKey)
	if outcome.Code != model.OutcomeMatchedAndDispatched {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeMatchedAndDispatched)
	}
	if outcome.CompanionArtifactID != companionKey {
		t.Errorf("CompanionArtifactID = %q, want %q", outcome.CompanionArtifactID, companionKey)
	}
}

func TestService_Ingest_SessionsDoNotCrossMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.service.Ingest(ctx, primaryKey) // session test22

	outcome := f.service.Ingest(ctx, "translater/other-observer_2025-08-10-06-30-00.mp4")
	if outcome.Code != model.OutcomeRecordedAwaitingPartner {
		t.Fatalf("Code = %s, want %s", outcome.Code, model.OutcomeRecordedAwaitingPartner)
	}
	if got := f.runner.Invocations(); len(got) != 0 {
		t.Errorf("runner has %d invocation(s), want 0", len(got))
	}
}
