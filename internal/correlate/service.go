package correlate

import (
	"context"
	"fmt"
	"time"

	"vidpair/internal/model"
)

const (
	// callTimeout bounds each store or runner call so a stuck backend
	// surfaces as a failed invocation instead of a hang.
	callTimeout = 10 * time.Second

	// queryAttempts bounds local retries of the partner query. After the
	// last attempt a transient read failure degrades to "no match found";
	// the arrival record is already durable, so a later partner arrival
	// still discovers it.
	queryAttempts = 3
)

// Service is the ingestion handler. It sequences parse, normalize, record,
// match and dispatch for one upload notification. Invocations are stateless
// and safe to run concurrently in any order; coordination between them
// happens only through the store's atomic operations.
type Service struct {
	store       Store
	runner      Runner
	logger      Logger
	clock       Clock
	idgen       IDGenerator
	retention   time.Duration
	matchWindow time.Duration
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, runner Runner, logger Logger, clock Clock, idgen IDGenerator, retention, matchWindow time.Duration) *Service {
	return &Service{
		store:       store,
		runner:      runner,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		retention:   retention,
		matchWindow: matchWindow,
	}
}

// Ingest processes one upload-completed notification for the artifact with
// the given storage key. It always returns a structured outcome and never
// panics on malformed input. Once the arrival is recorded it stays durable
// regardless of what happens to the rest of the invocation.
func (s *Service) Ingest(ctx context.Context, artifactID string) model.Outcome {
	parsed, ok := ParseIdentifier(artifactID)
	if !ok {
		s.logger.Debug("unrecognized artifact key, ignoring", "artifact", artifactID)
		return model.Outcome{Code: model.OutcomeIgnored}
	}

	instant, err := TimestampInstant(parsed.RawTimestamp, parsed.Role)
	if err != nil {
		s.logger.Error("timestamp normalization failed", "artifact", artifactID, "error", err)
		return failedOutcome(parsed, "", err, false)
	}
	canonical := instant.Format(CanonicalTimestampLayout)

	now := s.clock.Now().UTC()
	rec := model.ArrivalRecord{
		Session:            parsed.Session,
		CanonicalTimestamp: canonical,
		OriginalTimestamp:  parsed.RawTimestamp,
		Role:               parsed.Role,
		ArtifactID:         artifactID,
		ArrivalTime:        now,
		Expiry:             now.Add(s.retention),
	}

	insertCtx, cancel := context.WithTimeout(ctx, callTimeout)
	inserted, err := s.store.InsertIfAbsent(insertCtx, rec)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		s.logger.Error("recording arrival failed", "session", parsed.Session, "timestamp", canonical, "error", err)
		return failedOutcome(parsed, canonical, err, true)
	}
	if inserted == AlreadyExists {
		// Duplicate delivery. Still proceed to matching: the partner may
		// have arrived since the first delivery.
		s.logger.Debug("duplicate arrival", "session", parsed.Session, "timestamp", canonical)
	}

	partner, found := s.findMatch(ctx, parsed.Session, instant, parsed.Role)
	if !found {
		s.logger.Info("recorded, awaiting partner",
			"session", parsed.Session, "role", parsed.Role, "timestamp", canonical)
		return awaitingOutcome(parsed, canonical)
	}

	claimCtx, cancel := context.WithTimeout(ctx, callTimeout)
	claimed, err := s.store.ClaimPair(claimCtx, parsed.Session, canonical, partner.CanonicalTimestamp)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: claiming pair: %v", ErrStoreUnavailable, err)
		s.logger.Error("claiming pair failed", "session", parsed.Session, "timestamp", canonical, "error", err)
		return failedOutcome(parsed, canonical, err, true)
	}
	if !claimed {
		// A racing invocation for the other side won the claim, or a
		// duplicate notification found its partner already matched.
		s.logger.Info("pair already claimed",
			"session", parsed.Session, "timestamp", canonical, "partner", partner.CanonicalTimestamp)
		return awaitingOutcome(parsed, canonical)
	}

	primaryID, companionID := rec.ArtifactID, partner.ArtifactID
	if rec.Role == model.RoleCompanion {
		primaryID, companionID = partner.ArtifactID, rec.ArtifactID
	}

	payload := MergePayload{
		RequestID:           s.idgen.New(),
		PrimaryArtifactID:   primaryID,
		CompanionArtifactID: companionID,
		Session:             parsed.Session,
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, callTimeout)
	err = s.runner.Invoke(dispatchCtx, payload)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDispatchRejected, err)
		s.logger.Error("merge dispatch failed",
			"session", parsed.Session, "primary", primaryID, "companion", companionID, "error", err)
		s.releaseClaim(ctx, parsed.Session, canonical, partner.CanonicalTimestamp)
		return model.Outcome{
			Code:                model.OutcomeMatchedDispatchFailed,
			Session:             parsed.Session,
			Role:                parsed.Role,
			CanonicalTimestamp:  canonical,
			PrimaryArtifactID:   primaryID,
			CompanionArtifactID: companionID,
			Reason:              err.Error(),
		}
	}

	s.logger.Info("matched and dispatched",
		"session", parsed.Session, "primary", primaryID, "companion", companionID, "request", payload.RequestID)
	return model.Outcome{
		Code:                model.OutcomeMatchedAndDispatched,
		Session:             parsed.Session,
		Role:                parsed.Role,
		CanonicalTimestamp:  canonical,
		PrimaryArtifactID:   primaryID,
		CompanionArtifactID: companionID,
	}
}

// findMatch queries the opposite role's arrivals and selects the closest
// candidate within the match window. Transient read failures are retried a
// bounded number of times and then degrade to "no match found".
func (s *Service) findMatch(ctx context.Context, session string, instant time.Time, role model.Role) (model.ArrivalRecord, bool) {
	var (
		candidates []model.ArrivalRecord
		err        error
	)
	for attempt := 1; attempt <= queryAttempts; attempt++ {
		queryCtx, cancel := context.WithTimeout(ctx, callTimeout)
		candidates, err = s.store.QueryByRoleAndSession(queryCtx, role.Opposite(), session)
		cancel()
		if err == nil {
			break
		}
		s.logger.Warn("partner query failed", "session", session, "attempt", attempt, "error", err)
	}
	if err != nil {
		return model.ArrivalRecord{}, false
	}
	return SelectClosest(instant, candidates, s.matchWindow)
}

// releaseClaim is best effort: if it fails, the pair stays bound and needs
// a manual replay after the stale claim is cleared.
func (s *Service) releaseClaim(ctx context.Context, session, tsA, tsB string) {
	releaseCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := s.store.ReleasePair(releaseCtx, session, tsA, tsB); err != nil {
		s.logger.Error("releasing claim failed", "session", session, "timestamp", tsA, "partner", tsB, "error", err)
	}
}

func awaitingOutcome(parsed ParsedIdentifier, canonical string) model.Outcome {
	return model.Outcome{
		Code:               model.OutcomeRecordedAwaitingPartner,
		Session:            parsed.Session,
		Role:               parsed.Role,
		CanonicalTimestamp: canonical,
	}
}

func failedOutcome(parsed ParsedIdentifier, canonical string, err error, retryable bool) model.Outcome {
	return model.Outcome{
		Code:               model.OutcomeFailed,
		Session:            parsed.Session,
		Role:               parsed.Role,
		CanonicalTimestamp: canonical,
		Reason:             err.Error(),
		Retryable:          retryable,
	}
}
