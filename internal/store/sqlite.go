package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"vidpair/internal/correlate"
	"vidpair/internal/model"
	"vidpair/internal/store/migrations"
)

// SQLiteStore implements the correlation store on a local SQLite database.
// SQLite has no native TTL, so expiry is a read-time filter plus an
// opportunistic sweep of expired rows on every query.
type SQLiteStore struct {
	db    *sql.DB
	clock correlate.Clock
	path  string
}

// NewSQLiteStore opens (or creates) the database at path and applies any
// pending schema migrations. path may be ":memory:" for tests.
func NewSQLiteStore(path string, clock correlate.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, rec model.ArrivalRecord) (correlate.InsertOutcome, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO arrival_records
			(session, canonical_timestamp, original_timestamp, role, artifact_id, arrival_time, expiry_epoch_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session, canonical_timestamp) DO NOTHING`,
		rec.Session, rec.CanonicalTimestamp, rec.OriginalTimestamp, string(rec.Role),
		rec.ArtifactID, rec.ArrivalTime.UTC().Format(time.RFC3339), rec.Expiry.Unix())
	if err != nil {
		return correlate.AlreadyExists, fmt.Errorf("inserting arrival: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return correlate.AlreadyExists, fmt.Errorf("inserting arrival: %w", err)
	}
	if n == 0 {
		return correlate.AlreadyExists, nil
	}
	return correlate.Inserted, nil
}

func (s *SQLiteStore) QueryByRoleAndSession(ctx context.Context, role model.Role, session string) ([]model.ArrivalRecord, error) {
	now := s.clock.Now().Unix()

	// Sweep first; the WHERE filter below is the correctness guarantee,
	// the sweep just keeps the table from accumulating dead rows.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM arrival_records WHERE expiry_epoch_seconds <= ?`, now); err != nil {
		return nil, fmt.Errorf("sweeping expired arrivals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session, canonical_timestamp, original_timestamp, role, artifact_id,
		       arrival_time, expiry_epoch_seconds, COALESCE(matched_with, '')
		FROM arrival_records
		WHERE role = ? AND session = ? AND expiry_epoch_seconds > ?`,
		string(role), session, now)
	if err != nil {
		return nil, fmt.Errorf("querying arrivals: %w", err)
	}
	defer rows.Close()

	var out []model.ArrivalRecord
	for rows.Next() {
		var (
			rec         model.ArrivalRecord
			roleStr     string
			arrivalStr  string
			expiryEpoch int64
		)
		if err := rows.Scan(&rec.Session, &rec.CanonicalTimestamp, &rec.OriginalTimestamp, &roleStr,
			&rec.ArtifactID, &arrivalStr, &expiryEpoch, &rec.MatchedWith); err != nil {
			return nil, fmt.Errorf("scanning arrival: %w", err)
		}
		rec.Role = model.Role(roleStr)
		rec.ArrivalTime, err = time.Parse(time.RFC3339, arrivalStr)
		if err != nil {
			return nil, fmt.Errorf("parsing arrival time %q: %w", arrivalStr, err)
		}
		rec.Expiry = time.Unix(expiryEpoch, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading arrivals: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ClaimPair(ctx context.Context, session, tsA, tsB string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE arrival_records
		SET matched_with = CASE canonical_timestamp WHEN ? THEN ? ELSE ? END
		WHERE session = ? AND canonical_timestamp IN (?, ?) AND matched_with IS NULL`,
		tsA, tsB, tsA, session, tsA, tsB)
	if err != nil {
		return false, fmt.Errorf("claiming pair: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming pair: %w", err)
	}
	if n != 2 {
		// One side missing or already claimed; rollback undoes any
		// half-claim.
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing claim: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ReleasePair(ctx context.Context, session, tsA, tsB string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE arrival_records
		SET matched_with = NULL
		WHERE session = ?
		  AND ((canonical_timestamp = ? AND matched_with = ?)
		    OR (canonical_timestamp = ? AND matched_with = ?))`,
		session, tsA, tsB, tsB, tsA)
	if err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements the store interface
var _ correlate.Store = (*SQLiteStore)(nil)
