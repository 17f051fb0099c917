// Package ledger stores swipe events and derives mutual matches in SQL.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/kindred/internal/db/sqldb"
	"github.com/kailas-cloud/kindred/internal/domain/swipe"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS swipe_events (
		actor_id   TEXT NOT NULL,
		target_id  TEXT NOT NULL,
		direction  TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		match_id   TEXT,
		PRIMARY KEY (actor_id, target_id)
	)`,
	`CREATE TABLE IF NOT EXISTS swipe_pairs (
		lo_id      TEXT NOT NULL,
		hi_id      TEXT NOT NULL,
		lo_dir     TEXT,
		hi_dir     TEXT,
		match_id   TEXT,
		matched_at BIGINT,
		PRIMARY KEY (lo_id, hi_id)
	)`,
}

const (
	insertEventSQL = `INSERT INTO swipe_events (actor_id, target_id, direction, created_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (actor_id, target_id) DO NOTHING`

	selectEventSQL = `SELECT direction, created_at, match_id FROM swipe_events
		WHERE actor_id = ? AND target_id = ?`

	upsertPairSQL = `INSERT INTO swipe_pairs (lo_id, hi_id, lo_dir, hi_dir)
		VALUES (?, ?, ?, ?) ON CONFLICT (lo_id, hi_id) DO UPDATE SET
		lo_dir = COALESCE(swipe_pairs.lo_dir, excluded.lo_dir),
		hi_dir = COALESCE(swipe_pairs.hi_dir, excluded.hi_dir)`

	// Единственная точка создания матча: условный UPDATE, RowsAffected()==1
	// только у одной транзакции.
	claimMatchSQL = `UPDATE swipe_pairs SET match_id = ?, matched_at = ?
		WHERE lo_id = ? AND hi_id = ? AND match_id IS NULL
		AND lo_dir IN ('like', 'superlike') AND hi_dir IN ('like', 'superlike')`

	setEventMatchSQL = `UPDATE swipe_events SET match_id = ? WHERE actor_id = ? AND target_id = ?`

	selectMatchSQL = `SELECT match_id, matched_at FROM swipe_pairs
		WHERE lo_id = ? AND hi_id = ? AND match_id IS NOT NULL`
)

// Repo is the SQL-backed swipe ledger.
type Repo struct {
	db    *sql.DB
	bind  func(string) string
	newID func() string
}

// New creates a ledger over an opened database.
func New(db *sqldb.DB) *Repo {
	return &Repo{db: db.DB, bind: db.Rebind, newID: uuid.NewString}
}

// Migrate creates the ledger tables when absent.
func (r *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Record appends a swipe and creates a match when interest became mutual.
// A repeated (actor, target) swipe is a no-op: duplicate is true and the
// outcome stored with the original event is returned.
func (r *Repo) Record(ctx context.Context, ev swipe.Event) (out swipe.Outcome, duplicate bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return swipe.Outcome{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, r.bind(insertEventSQL),
		ev.ActorID, ev.TargetID, string(ev.Direction), ev.CreatedAt.UnixMilli())
	if err != nil {
		return swipe.Outcome{}, false, fmt.Errorf("insert swipe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return swipe.Outcome{}, false, fmt.Errorf("insert swipe rows: %w", err)
	}

	if n == 0 {
		out, err = r.storedOutcome(ctx, tx, ev.ActorID, ev.TargetID)
		if err != nil {
			return swipe.Outcome{}, false, err
		}
		if err = tx.Commit(); err != nil {
			return swipe.Outcome{}, false, fmt.Errorf("commit: %w", err)
		}
		return out, true, nil
	}

	out = swipe.Outcome{
		Direction: ev.Direction,
		CreatedAt: time.UnixMilli(ev.CreatedAt.UnixMilli()),
	}
	if ev.Direction.Positive() {
		matchID, err := r.claimMatch(ctx, tx, ev)
		if err != nil {
			return swipe.Outcome{}, false, err
		}
		if matchID != "" {
			out.Matched = true
			out.MatchID = matchID
		}
	}

	if err = tx.Commit(); err != nil {
		return swipe.Outcome{}, false, fmt.Errorf("commit: %w", err)
	}
	return out, false, nil
}

// claimMatch records the actor's side of the pair and tries to create the match.
// Returns the new match id, or "" when this swipe did not create one.
func (r *Repo) claimMatch(ctx context.Context, tx *sql.Tx, ev swipe.Event) (string, error) {
	lo, hi := swipe.Pair(ev.ActorID, ev.TargetID)
	var loDir, hiDir sql.NullString
	if ev.ActorID == lo {
		loDir = sql.NullString{String: string(ev.Direction), Valid: true}
	} else {
		hiDir = sql.NullString{String: string(ev.Direction), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, r.bind(upsertPairSQL), lo, hi, loDir, hiDir); err != nil {
		return "", fmt.Errorf("upsert pair: %w", err)
	}

	matchID := r.newID()
	res, err := tx.ExecContext(ctx, r.bind(claimMatchSQL),
		matchID, ev.CreatedAt.UnixMilli(), lo, hi)
	if err != nil {
		return "", fmt.Errorf("claim match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("claim match rows: %w", err)
	}
	if n != 1 {
		return "", nil
	}

	if _, err := tx.ExecContext(ctx, r.bind(setEventMatchSQL),
		matchID, ev.ActorID, ev.TargetID); err != nil {
		return "", fmt.Errorf("link match: %w", err)
	}
	return matchID, nil
}

func (r *Repo) storedOutcome(ctx context.Context, tx *sql.Tx, actor, target string) (swipe.Outcome, error) {
	var (
		dir     string
		created int64
		matchID sql.NullString
	)
	err := tx.QueryRowContext(ctx, r.bind(selectEventSQL), actor, target).Scan(&dir, &created, &matchID)
	if err != nil {
		return swipe.Outcome{}, fmt.Errorf("select swipe: %w", err)
	}
	return swipe.Outcome{
		Direction: swipe.Direction(dir),
		Matched:   matchID.Valid,
		MatchID:   matchID.String,
		CreatedAt: time.UnixMilli(created),
	}, nil
}

// Match returns the match id for an unordered pair, or "" when none exists.
func (r *Repo) Match(ctx context.Context, a, b string) (string, time.Time, error) {
	lo, hi := swipe.Pair(a, b)
	var (
		id string
		at int64
	)
	err := r.db.QueryRowContext(ctx, r.bind(selectMatchSQL), lo, hi).Scan(&id, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("select match: %w", err)
	}
	return id, time.UnixMilli(at), nil
}
