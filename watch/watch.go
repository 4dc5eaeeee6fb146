// CLAUDE:SUMMARY Polls a SQLite version token on a pinned connection and runs a debounced reload when another writer commits.
// Package watch reloads in-memory state when the database changes under
// the process, for example when the CLI edits the profile while the
// service is running.
//
//	w := watch.New(st.DB, watch.Options{Interval: time.Second, Debounce: 300 * time.Millisecond})
//	go w.OnChange(ctx, agent.Reload)
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Querier is the subset of *sql.DB and *sql.Conn a detector needs.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChangeDetector reads a version token. Two different values mean the
// database changed between the reads.
type ChangeDetector func(ctx context.Context, q Querier) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling period. Default 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action runs;
	// further changes restart it. 0 runs the action on the poll that saw
	// the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a database and runs an action on change.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// New creates a Watcher. Call OnChange to start it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// Version returns the last version the action succeeded for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange polls until ctx is done and runs action after each debounced
// change. PRAGMA data_version is per connection, so the detector runs on
// one connection pinned for the watcher's lifetime. A failed action does
// not advance the version and is retried on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) error {
	log := w.opts.Logger
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("watch: pin connection: %w", err)
	}
	defer conn.Close()

	if v, err := w.opts.Detector(ctx, conn); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	log.Debug("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			log.Debug("watch: stopped")
			return nil

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, conn)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(ctx, action, pending)
				pending = -1
			}
		}
	}
}

// fire runs action and advances the version on success.
func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, ver int64) {
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	w.reloads.Add(1)
	w.version.Store(ver)
	w.opts.Logger.Info("watch: reloaded", "version", ver, "duration", time.Since(start))
}

// PragmaDataVersion changes whenever another connection commits to the
// same database file.
func PragmaDataVersion(ctx context.Context, q Querier) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// PragmaUserVersion reads the application-controlled user_version.
func PragmaUserVersion(ctx context.Context, q Querier) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}
