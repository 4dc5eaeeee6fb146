package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formpilot/dbopen"
)

// testDB opens a file database: the watcher pins one connection and the
// test writes through another, as a second process would.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "watch.db"),
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY, v TEXT)`))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setUserVersion(t *testing.T, db *sql.DB, v int) {
	t.Helper()
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPragmaUserVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := PragmaUserVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
	setUserVersion(t, db, 42)
	if v, _ = PragmaUserVersion(ctx, db); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestPragmaDataVersion_SeesOtherConnections(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	before, err := PragmaDataVersion(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO items (v) VALUES ('x')`); err != nil {
		t.Fatal(err)
	}
	after, err := PragmaDataVersion(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatalf("data_version did not move after a write from another connection (%d)", after)
	}
}

func TestOnChange_ReloadsOnWrite(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var reloads atomic.Int32
	go func() {
		done <- w.OnChange(ctx, func(context.Context) error {
			reloads.Add(1)
			return nil
		})
	}()
	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })

	if _, err := db.Exec(`INSERT INTO items (v) VALUES ('a')`); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", func() bool { return reloads.Load() == 1 })

	time.Sleep(50 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads without a write: got %d", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("OnChange: %v", err)
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: PragmaUserVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var reloads atomic.Int32
	go w.OnChange(ctx, func(context.Context) error {
		reloads.Add(1)
		return nil
	})
	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })

	for i := 1; i <= 5; i++ {
		setUserVersion(t, db, i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads during debounce: got %d", got)
	}

	waitFor(t, "debounced reload", func() bool { return reloads.Load() == 1 })
	time.Sleep(200 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("expected exactly 1 debounced reload, got %d", got)
	}
	if v := w.Version(); v != 5 {
		t.Fatalf("version: got %d, want 5", v)
	}
}

func TestOnChange_FailedReloadIsRetried(t *testing.T) {
	db := testDB(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: PragmaUserVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	go w.OnChange(ctx, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("store busy")
		}
		return nil
	})
	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })

	setUserVersion(t, db, 1)
	waitFor(t, "version advance", func() bool { return w.Version() == 1 })

	if got := calls.Load(); got < 2 {
		t.Fatalf("expected a failed call then a retry, got %d calls", got)
	}
	if s := w.Stats(); s.Errors == 0 || s.Reloads != 1 {
		t.Fatalf("stats: %+v", s)
	}
}
