package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/formpilot/idgen"
)

// RecordOptions are the recorder settings.
type RecordOptions struct {
	RecordMouseMoves bool
	// MouseMoveInterval is the minimum gap between two recorded mousemoves.
	MouseMoveInterval time.Duration
}

// Hook installs the page-side capture for one recording session: capture
// phase listeners for DOMEventTypes and the fetch/XHR patch. Install calls
// emit for every captured event; the returned release removes the listeners
// and restores the original network primitives. Release must be safe to
// call once, on any path.
type Hook interface {
	Install(ctx context.Context, opts RecordOptions, emit func(Event)) (release func(context.Context) error, err error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, opts RecordOptions, emit func(Event)) (func(context.Context) error, error)

func (f HookFunc) Install(ctx context.Context, opts RecordOptions, emit func(Event)) (func(context.Context) error, error) {
	return f(ctx, opts, emit)
}

// State is the recorder state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Recorder owns the event buffer of at most one recording session.
type Recorder struct {
	mu       sync.Mutex
	state    State
	id       string
	name     string
	opts     RecordOptions
	events   []Event
	lastMove int64
	release  func(context.Context) error
	now      func() time.Time
	logger   *slog.Logger
}

// NewRecorder creates an idle recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{now: time.Now, logger: logger}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns the id and macro name of the active recording.
func (r *Recorder) Session() (id, name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.name, r.state == Recording
}

// Start enters the recording state under name and installs hook. On install
// failure the recorder stays idle.
func (r *Recorder) Start(ctx context.Context, hook Hook, name string, opts RecordOptions) (string, error) {
	if name == "" {
		return "", fmt.Errorf("macro: start: %w", ErrEmptyName)
	}
	r.mu.Lock()
	if r.state == Recording {
		r.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	// Hold the state before installing so a concurrent Start fails fast.
	// Capture accepts events from here on, including those the hook emits
	// while it is still installing.
	r.state = Recording
	r.id = idgen.Recording()
	r.name = name
	r.opts = opts
	r.events = nil
	r.lastMove = 0
	r.release = nil
	id := r.id
	r.mu.Unlock()

	release, err := hook.Install(ctx, opts, r.Capture)
	if err != nil {
		r.reset()
		return "", fmt.Errorf("macro: install hook: %w", err)
	}

	r.mu.Lock()
	if r.state != Recording || r.id != id {
		// Stopped while the hook was being installed.
		r.mu.Unlock()
		if err := release(ctx); err != nil {
			return "", fmt.Errorf("macro: release hook: %w", err)
		}
		return "", ErrNotRecording
	}
	r.release = release
	r.mu.Unlock()

	r.logger.Info("macro: recording started", "id", id, "name", name,
		"mouse_moves", opts.RecordMouseMoves)
	return id, nil
}

// Capture appends ev to the active session. Events arriving while idle,
// mousemoves when they are not recorded and mousemoves closer than
// MouseMoveInterval to the previous one are dropped.
func (r *Recorder) Capture(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = r.now().UnixMilli()
	}
	if ev.Type == MouseMove {
		if !r.opts.RecordMouseMoves {
			return
		}
		if r.lastMove != 0 && ev.Timestamp-r.lastMove < r.opts.MouseMoveInterval.Milliseconds() {
			return
		}
		r.lastMove = ev.Timestamp
	}
	r.events = append(r.events, ev)
}

// Stop leaves the recording state, releasing the hook, and returns the
// captured macro. An empty capture returns ErrEmptyRecording. A release
// failure is joined to the returned error but never keeps the recorder in
// the recording state.
func (r *Recorder) Stop(ctx context.Context) (Macro, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return Macro{}, ErrNotRecording
	}
	m := Macro{Name: r.name, Events: r.events}
	id := r.id
	release := r.release
	r.state = Idle
	r.events = nil
	r.release = nil
	r.mu.Unlock()

	var errs []error
	if release != nil {
		if err := release(ctx); err != nil {
			r.logger.Error("macro: release hook failed", "id", id, "error", err)
			errs = append(errs, fmt.Errorf("macro: release hook: %w", err))
		}
	}
	if len(m.Events) == 0 {
		r.logger.Info("macro: empty recording discarded", "id", id, "name", m.Name)
		errs = append(errs, ErrEmptyRecording)
	} else {
		r.logger.Info("macro: recording stopped", "id", id, "name", m.Name, "events", len(m.Events))
	}
	return m, errors.Join(errs...)
}

func (r *Recorder) reset() {
	r.mu.Lock()
	r.state = Idle
	r.events = nil
	r.release = nil
	r.mu.Unlock()
}
