package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/formpilot/dom"
)

// Store persists macros. DeleteMacro and RenameMacro return
// ErrMacroNotFound for unknown names.
type Store interface {
	LoadMacros(ctx context.Context) (Macros, error)
	SaveMacro(ctx context.Context, name string, events []Event) error
	DeleteMacro(ctx context.Context, name string) error
	RenameMacro(ctx context.Context, from, to string) error
}

// Engine binds a Recorder and a Player to a Store. At most one replay runs
// at a time: starting a recording or another replay cancels it.
type Engine struct {
	rec    *Recorder
	player *Player
	store  Store
	logger *slog.Logger

	mu         sync.Mutex
	cancelPlay context.CancelFunc
	playGen    uint64
}

// NewEngine creates an Engine. A nil player gets the default one.
func NewEngine(store Store, player *Player, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if player == nil {
		player = NewPlayer(logger)
	}
	return &Engine{rec: NewRecorder(logger), player: player, store: store, logger: logger}
}

// Recorder exposes the engine's recorder.
func (e *Engine) Recorder() *Recorder { return e.rec }

// StartRecording cancels any replay in flight and starts recording name
// through hook.
func (e *Engine) StartRecording(ctx context.Context, hook Hook, name string, opts RecordOptions) (string, error) {
	e.cancelReplay()
	return e.rec.Start(ctx, hook, name, opts)
}

// StopRecording stops the active recording and persists it. An empty
// recording returns ErrEmptyRecording and leaves the store unchanged. The
// macro is persisted even when releasing the hook failed.
func (e *Engine) StopRecording(ctx context.Context) (Macro, error) {
	m, err := e.rec.Stop(ctx)
	if errors.Is(err, ErrNotRecording) || len(m.Events) == 0 {
		return m, err
	}
	if serr := e.store.SaveMacro(ctx, m.Name, m.Events); serr != nil {
		return m, errors.Join(err, fmt.Errorf("%w: %q: %w", ErrPersist, m.Name, serr))
	}
	return m, err
}

// AbortRecording stops the active recording without persisting it.
func (e *Engine) AbortRecording(ctx context.Context) error {
	_, err := e.rec.Stop(ctx)
	if errors.Is(err, ErrEmptyRecording) {
		return nil
	}
	return err
}

// Play replays the stored macro name against t. An unknown name is not an
// error: it yields a report with Missing set and a warning.
func (e *Engine) Play(ctx context.Context, t dom.Target, name string, opts PlayOptions) (*Report, error) {
	macros, err := e.store.LoadMacros(ctx)
	if err != nil {
		return nil, fmt.Errorf("macro: load: %w", err)
	}
	events, ok := macros[name]
	if !ok {
		e.logger.Warn("macro: play unknown macro", "macro", name)
		return &Report{Macro: name, Missing: true, Instant: opts.Instant, Steps: []StepResult{}}, nil
	}

	ctx, done := e.beginReplay(ctx)
	defer done()
	return e.player.Play(ctx, t, Macro{Name: name, Events: events}, opts)
}

func (e *Engine) beginReplay(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.cancelPlay != nil {
		e.cancelPlay()
	}
	e.playGen++
	gen := e.playGen
	e.cancelPlay = cancel
	e.mu.Unlock()

	return ctx, func() {
		e.mu.Lock()
		if e.playGen == gen {
			e.cancelPlay = nil
		}
		e.mu.Unlock()
		cancel()
	}
}

// cancelReplay cancels the replay in flight, if any.
func (e *Engine) cancelReplay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelPlay != nil {
		e.cancelPlay()
		e.cancelPlay = nil
		e.logger.Info("macro: replay cancelled by new action")
	}
}

// List returns the stored macro names, sorted.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	macros, err := e.store.LoadMacros(ctx)
	if err != nil {
		return nil, fmt.Errorf("macro: load: %w", err)
	}
	names := make([]string, 0, len(macros))
	for n := range macros {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored macro.
func (e *Engine) Delete(ctx context.Context, name string) error {
	if err := e.store.DeleteMacro(ctx, name); err != nil {
		return fmt.Errorf("macro: delete %q: %w", name, err)
	}
	return nil
}

// Rename renames a stored macro.
func (e *Engine) Rename(ctx context.Context, from, to string) error {
	if to == "" {
		return fmt.Errorf("macro: rename %q: %w", from, ErrEmptyName)
	}
	if err := e.store.RenameMacro(ctx, from, to); err != nil {
		return fmt.Errorf("macro: rename %q: %w", from, err)
	}
	return nil
}
