package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kailas-cloud/kindred/internal/db/sqldb"
	"github.com/kailas-cloud/kindred/internal/domain/swipe"
)

func newSQLiteRepo(t *testing.T) *Repo {
	t.Helper()
	return openSQLiteRepo(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
}

// newSQLitePoolRepo opens a file database with several connections so
// transactions from different goroutines run on separate connections.
func newSQLitePoolRepo(t *testing.T, conns int) *Repo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	return openSQLiteRepo(t, "file:"+path, sqldb.WithMaxOpenConns(conns))
}

func openSQLiteRepo(t *testing.T, dsn string, opts ...sqldb.Option) *Repo {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, dsn, opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r := New(db)
	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

func event(t *testing.T, actor, target string, dir swipe.Direction) swipe.Event {
	t.Helper()
	ev, err := swipe.NewEvent(actor, target, dir, time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func TestRecord_NoMatchOnOneSidedLike(t *testing.T) {
	r := newSQLiteRepo(t)

	out, dup, err := r.Record(context.Background(), event(t, "alice", "bob", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if dup || out.Matched || out.MatchID != "" {
		t.Errorf("unexpected outcome %+v dup=%v", out, dup)
	}
	if out.Direction != swipe.Like {
		t.Errorf("expected like, got %q", out.Direction)
	}
}

func TestRecord_MutualLikeCreatesMatch(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	if _, _, err := r.Record(ctx, event(t, "alice", "bob", swipe.Like)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	out, _, err := r.Record(ctx, event(t, "bob", "alice", swipe.Superlike))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !out.Matched || out.MatchID == "" {
		t.Fatalf("expected match, got %+v", out)
	}

	id, _, err := r.Match(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if id != out.MatchID {
		t.Errorf("stored match %q != outcome %q", id, out.MatchID)
	}
}

func TestRecord_DislikeNeverMatches(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	if _, _, err := r.Record(ctx, event(t, "alice", "bob", swipe.Like)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	out, _, err := r.Record(ctx, event(t, "bob", "alice", swipe.Dislike))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.Matched {
		t.Error("dislike must not create a match")
	}
	id, _, err := r.Match(ctx, "alice", "bob")
	if err != nil || id != "" {
		t.Errorf("expected no match, got %q err=%v", id, err)
	}
}

func TestRecord_DuplicateReturnsPriorOutcome(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	first, _, err := r.Record(ctx, event(t, "alice", "bob", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	matched, _, err := r.Record(ctx, event(t, "bob", "alice", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	again, dup, err := r.Record(ctx, event(t, "bob", "alice", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !dup {
		t.Error("expected duplicate")
	}
	if again.MatchID != matched.MatchID || !again.Matched || !again.CreatedAt.Equal(matched.CreatedAt) {
		t.Errorf("replay %+v differs from original %+v", again, matched)
	}

	replayFirst, dup, err := r.Record(ctx, event(t, "alice", "bob", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !dup || replayFirst.Matched || !replayFirst.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("replay %+v differs from original %+v", replayFirst, first)
	}
}

func TestRecord_DuplicateWithOtherDirectionIsNoop(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	if _, _, err := r.Record(ctx, event(t, "alice", "bob", swipe.Dislike)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	out, dup, err := r.Record(ctx, event(t, "alice", "bob", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !dup || out.Direction != swipe.Dislike {
		t.Errorf("expected stored dislike, got %+v dup=%v", out, dup)
	}
}

func TestRecord_ConcurrentMutualLikesMatchExactlyOnce(t *testing.T) {
	r := newSQLitePoolRepo(t, 4)
	ctx := context.Background()
	if got := r.db.Stats().MaxOpenConnections; got < 2 {
		t.Fatalf("pool must allow overlapping transactions, max conns = %d", got)
	}

	const pairs = 25
	for i := 0; i < pairs; i++ {
		a := fmt.Sprintf("a%d", i)
		b := fmt.Sprintf("b%d", i)

		ab := event(t, a, b, swipe.Like)
		ba := event(t, b, a, swipe.Like)

		var (
			wg       sync.WaitGroup
			outcomes [2]swipe.Outcome
			errs     [2]error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcomes[0], _, errs[0] = r.Record(ctx, ab)
		}()
		go func() {
			defer wg.Done()
			outcomes[1], _, errs[1] = r.Record(ctx, ba)
		}()
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatalf("pair %d: %v", i, err)
			}
		}
		created := 0
		for _, o := range outcomes {
			if o.Matched {
				created++
			}
		}
		if created != 1 {
			t.Fatalf("pair %d: expected exactly one match creation, got %d", i, created)
		}
	}
}

func TestMatch_NoneReturnsEmpty(t *testing.T) {
	r := newSQLiteRepo(t)
	id, at, err := r.Match(context.Background(), "x", "y")
	if err != nil || id != "" || !at.IsZero() {
		t.Errorf("expected empty match, got %q %v %v", id, at, err)
	}
}

// --- sqlmock error paths ---

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r := New(&sqldb.DB{DB: db, Driver: sqldb.DriverPostgres})
	r.newID = func() string { return "m-1" }
	return r, mock
}

func TestRecord_BeginError(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	_, _, err := r.Record(context.Background(), event(t, "a", "b", swipe.Like))
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecord_InsertErrorRollsBack(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO swipe_events").
		WithArgs("a", "b", "like", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, _, err := r.Record(context.Background(), event(t, "a", "b", swipe.Like))
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecord_ClaimErrorRollsBack(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO swipe_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO swipe_pairs").
		WithArgs("a", "b", "like", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE swipe_pairs").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, _, err := r.Record(context.Background(), event(t, "a", "b", swipe.Like))
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecord_PostgresPlaceholdersAndMatch(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`VALUES \(\$1, \$2, \$3, \$4\)`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO swipe_pairs").
		WithArgs("a", "b", nil, "superlike").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE swipe_pairs").
		WithArgs("m-1", sqlmock.AnyArg(), "a", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE swipe_events").
		WithArgs("m-1", "b", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, dup, err := r.Record(context.Background(), event(t, "b", "a", swipe.Superlike))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if dup || !out.Matched || out.MatchID != "m-1" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecord_DuplicateReadsStoredRow(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO swipe_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT direction, created_at, match_id FROM swipe_events").
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"direction", "created_at", "match_id"}).
			AddRow("like", int64(1700000000000), "m-9"))
	mock.ExpectCommit()

	out, dup, err := r.Record(context.Background(), event(t, "a", "b", swipe.Like))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !dup || !out.Matched || out.MatchID != "m-9" || out.CreatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("unexpected outcome %+v dup=%v", out, dup)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
