// CLAUDE:SUMMARY Orchestrator: owns profile, mappings and settings in memory, drives fill, match, record, replay and training against the current page.
// Package agent wires the matcher, filler, trainer and macro engine to the
// persistent store and a page source, and exposes the result over HTTP and
// MCP.
//
// Profile, override mappings and settings live in memory and are written
// through to the store. A failed write is returned to the caller but the
// in-memory value is kept, so the user can retry without losing the edit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/hazyhaar/formpilot/config"
	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/filler"
	"github.com/hazyhaar/formpilot/macro"
	"github.com/hazyhaar/formpilot/matcher"
	"github.com/hazyhaar/formpilot/store"
	"github.com/hazyhaar/formpilot/trainer"
	"github.com/hazyhaar/formpilot/watch"
)

// ErrNoPage is returned by page operations before any page was opened.
var ErrNoPage = errors.New("agent: no page open")

// Page is a live or offline document the agent can fill, record on and
// replay into.
type Page interface {
	dom.Document
	dom.Target
	Recorder() macro.Hook
	URL() string
	Close() error
}

// Pages opens pages by URL.
type Pages interface {
	Open(ctx context.Context, url string) (Page, error)
}

// PagesFunc adapts a function to Pages.
type PagesFunc func(ctx context.Context, url string) (Page, error)

func (f PagesFunc) Open(ctx context.Context, url string) (Page, error) { return f(ctx, url) }

// Config configures an Agent.
type Config struct {
	Store *store.Store
	Pages Pages
	// Settings are used when the store holds none.
	Settings *config.Settings
	// Aliases replaces the trainer's default alias vocabulary when non-nil.
	Aliases map[string][]string
	// PlayerOptions are passed to the macro player.
	PlayerOptions []macro.PlayerOption
	Logger        *slog.Logger
}

// Agent is the formpilot orchestrator. It is safe for concurrent use.
type Agent struct {
	store   *store.Store
	pages   Pages
	engine  *macro.Engine
	buffer  *trainer.Buffer
	aliases map[string][]string
	logger  *slog.Logger

	mu       sync.RWMutex
	profile  matcher.Profile
	mappings matcher.Mappings
	settings config.Settings
	page     Page
}

// New creates an Agent and loads its state from the store.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Store == nil {
		return nil, errors.New("agent: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Agent{
		store:    cfg.Store,
		pages:    cfg.Pages,
		buffer:   trainer.NewBuffer(),
		aliases:  cfg.Aliases,
		logger:   cfg.Logger,
		profile:  matcher.Profile{},
		mappings: matcher.Mappings{},
		settings: config.DefaultSettings(),
	}
	a.engine = macro.NewEngine(cfg.Store, macro.NewPlayer(cfg.Logger, cfg.PlayerOptions...), cfg.Logger)

	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	if cfg.Settings != nil {
		if ok, err := a.hasStoredSettings(ctx); err != nil {
			return nil, err
		} else if !ok {
			a.mu.Lock()
			a.settings = *cfg.Settings
			a.mu.Unlock()
		}
	}
	return a, nil
}

func (a *Agent) hasStoredSettings(ctx context.Context) (bool, error) {
	var n int
	if err := a.store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&n); err != nil {
		return false, fmt.Errorf("agent: check settings: %w", err)
	}
	return n > 0, nil
}

// Reload replaces the in-memory profile, mappings and settings with the
// stored ones.
func (a *Agent) Reload(ctx context.Context) error {
	profile, err := a.store.LoadProfile(ctx)
	if err != nil {
		return fmt.Errorf("agent: reload: %w", err)
	}
	mappings, err := a.store.LoadMappings(ctx)
	if err != nil {
		return fmt.Errorf("agent: reload: %w", err)
	}
	settings, err := a.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("agent: reload: %w", err)
	}
	ok, err := a.hasStoredSettings(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.profile = profile
	a.mappings = mappings
	if ok {
		a.settings = settings
	}
	a.mu.Unlock()
	a.logger.Debug("agent: state reloaded", "keys", len(profile), "mappings", mappings.Len())
	return nil
}

// WatchStore reloads the in-memory state whenever another connection or
// process commits to the store. It blocks until ctx is done.
func (a *Agent) WatchStore(ctx context.Context, interval, debounce time.Duration) error {
	w := watch.New(a.store.DB, watch.Options{Interval: interval, Debounce: debounce, Logger: a.logger})
	return w.OnChange(ctx, a.Reload)
}

// Engine exposes the macro engine.
func (a *Agent) Engine() *macro.Engine { return a.engine }

// matcherLocked builds a matcher for the current settings and mappings.
// The caller holds a.mu.
func (a *Agent) matcherLocked(learning bool) *matcher.Matcher {
	opts := []matcher.Option{matcher.WithMappings(a.mappings), matcher.WithLogger(a.logger)}
	if learning && a.settings.LearningMode {
		opts = append(opts, matcher.WithLearning(a.buffer))
	}
	return matcher.New(a.settings.MatcherOptions(), opts...)
}

// --- pages ---

// Open navigates to url in a fresh page, which becomes the current page.
func (a *Agent) Open(ctx context.Context, url string) (Page, error) {
	if a.pages == nil {
		return nil, errors.New("agent: no page source configured")
	}
	p, err := a.pages.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("agent: open %s: %w", url, err)
	}
	a.mu.Lock()
	prev := a.page
	a.page = p
	a.mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			a.logger.Debug("agent: close previous page", "error", err)
		}
	}
	a.logger.Info("agent: page opened", "url", p.URL())
	return p, nil
}

// Current returns the current page.
func (a *Agent) Current() (Page, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.page == nil {
		return nil, ErrNoPage
	}
	return a.page, nil
}

// pageFor opens url when set, else returns the current page.
func (a *Agent) pageFor(ctx context.Context, url string) (Page, error) {
	if url != "" {
		return a.Open(ctx, url)
	}
	return a.Current()
}

// --- fill and match ---

// FillForm fills the page at url (or the current page) from the profile.
// Skipped fields are added to the training buffer.
func (a *Agent) FillForm(ctx context.Context, url string) (*filler.Report, error) {
	p, err := a.pageFor(ctx, url)
	if err != nil {
		return nil, err
	}
	return a.fill(ctx, p)
}

func (a *Agent) fill(ctx context.Context, doc dom.Document) (*filler.Report, error) {
	a.mu.RLock()
	m := a.matcherLocked(true)
	profile := maps.Clone(a.profile)
	settings := a.settings.FillerSettings()
	a.mu.RUnlock()

	rep, err := filler.New(m, a.logger).FillReport(ctx, doc, profile, settings)
	if err != nil {
		return nil, err
	}
	a.buffer.AddAll(rep.Skipped)
	return rep, nil
}

// MatchProfileKey scores one field against the profile.
func (a *Agent) MatchProfileKey(f dom.Field) matcher.Result {
	a.mu.RLock()
	m := a.matcherLocked(true)
	profile := a.profile
	a.mu.RUnlock()
	return m.Match(profile, f)
}

// Skipped returns the training buffer.
func (a *Agent) Skipped() []trainer.SkippedField { return a.buffer.Fields() }

// --- training ---

// Train learns override mappings from the skipped fields, persists them and
// refills the current page. When nothing was learned it returns
// trainer.ErrNoNewMappings and the buffer is kept.
func (a *Agent) Train(ctx context.Context) (matcher.Mappings, error) {
	a.mu.RLock()
	t := trainer.New(trainer.Config{
		Matcher: a.matcherLocked(false),
		Store:   a.store,
		Aliases: a.aliases,
		Gate:    a.settings.SimilarityThreshold,
		Refill:  a.refill,
		Logger:  a.logger,
	})
	profile := maps.Clone(a.profile)
	a.mu.RUnlock()

	return t.Train(ctx, a.buffer, profile)
}

func (a *Agent) refill(ctx context.Context, merged matcher.Mappings) error {
	a.mu.Lock()
	a.mappings = merged
	p := a.page
	a.mu.Unlock()
	if p == nil {
		return nil
	}
	_, err := a.fill(ctx, p)
	return err
}

// Mappings returns a copy of the override table.
func (a *Agent) Mappings() matcher.Mappings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := matcher.Mappings{}
	out.Merge(a.mappings)
	return out
}

// DeleteMapping removes one override.
func (a *Agent) DeleteMapping(ctx context.Context, site, identity string) error {
	if err := a.store.DeleteMapping(ctx, site, identity); err != nil {
		return err
	}
	mappings, err := a.store.LoadMappings(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.mappings = mappings
	a.mu.Unlock()
	return nil
}

// --- recording and replay ---

// StartRecording starts recording on the current page.
func (a *Agent) StartRecording(ctx context.Context, name string) (string, error) {
	p, err := a.Current()
	if err != nil {
		return "", err
	}
	a.mu.RLock()
	opts := a.settings.RecordOptions()
	a.mu.RUnlock()
	return a.engine.StartRecording(ctx, p.Recorder(), name, opts)
}

// StopRecording ends the recording and persists it unless it is empty.
func (a *Agent) StopRecording(ctx context.Context) (macro.Macro, error) {
	return a.engine.StopRecording(ctx)
}

// Play replays the named macro on the page at url (or the current page)
// and records the run.
func (a *Agent) Play(ctx context.Context, url, name string, instant bool) (*macro.Report, error) {
	p, err := a.pageFor(ctx, url)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	opts := a.settings.PlayOptions(instant)
	a.mu.RUnlock()

	rep, err := a.engine.Play(ctx, p, name, opts)
	if rep != nil && !rep.Missing {
		// The run history is best effort; a failed replay is still recorded.
		if serr := a.store.SaveRun(context.WithoutCancel(ctx), rep); serr != nil {
			a.logger.Warn("agent: save run", "macro", name, "error", serr)
		}
	}
	return rep, err
}

// Macros lists the stored macro names.
func (a *Agent) Macros(ctx context.Context) ([]string, error) { return a.engine.List(ctx) }

func (a *Agent) DeleteMacro(ctx context.Context, name string) error {
	return a.engine.Delete(ctx, name)
}

func (a *Agent) RenameMacro(ctx context.Context, from, to string) error {
	return a.engine.Rename(ctx, from, to)
}

// Runs returns the latest replay reports of a macro.
func (a *Agent) Runs(ctx context.Context, name string, limit int) ([]*macro.Report, error) {
	return a.store.ListRuns(ctx, name, limit)
}

// FragileSelectors returns the selectors that failed in at least
// minFailures of the last limit runs of a macro.
func (a *Agent) FragileSelectors(ctx context.Context, name string, limit, minFailures int) (map[string]int, error) {
	return a.store.FragileSelectors(ctx, name, limit, minFailures)
}

// --- profile and settings ---

// Profile returns a copy of the profile.
func (a *Agent) Profile() matcher.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.profile)
}

// SetProfile replaces the profile and persists it.
func (a *Agent) SetProfile(ctx context.Context, p matcher.Profile) error {
	a.mu.Lock()
	a.profile = maps.Clone(p)
	a.mu.Unlock()
	return a.store.SaveProfile(ctx, p)
}

// ImportProfile parses user-edited profile JSON. Nothing is changed when
// the text is invalid.
func (a *Agent) ImportProfile(ctx context.Context, data []byte) (matcher.Profile, error) {
	p, err := config.ParseProfileJSON(data)
	if err != nil {
		return nil, err
	}
	return p, a.SetProfile(ctx, p)
}

// Settings returns the current settings.
func (a *Agent) Settings() config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// SetSettings validates, applies and persists s.
func (a *Agent) SetSettings(ctx context.Context, s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return a.store.SaveSettings(ctx, s)
}

// ImportSettings parses user-edited settings JSON. Nothing is changed when
// the text is invalid.
func (a *Agent) ImportSettings(ctx context.Context, data []byte) (config.Settings, error) {
	s, err := config.ParseSettingsJSON(data)
	if err != nil {
		return config.Settings{}, err
	}
	return s, a.SetSettings(ctx, s)
}

// Close aborts an active recording and closes the current page.
func (a *Agent) Close(ctx context.Context) error {
	var errs []error
	if err := a.engine.AbortRecording(ctx); err != nil && !errors.Is(err, macro.ErrNotRecording) {
		errs = append(errs, err)
	}
	a.mu.Lock()
	p := a.page
	a.page = nil
	a.mu.Unlock()
	if p != nil {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
