package macro

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/idgen"
)

// Default replay pacing bounds.
const (
	DefaultMinDelay = 50 * time.Millisecond
	DefaultMaxDelay = 3 * time.Second
)

// PlayOptions are the replay settings.
type PlayOptions struct {
	// Instant replays without pacing.
	Instant               bool
	UseCoordinateFallback bool
	RelativeCoordinates   bool
	MinDelay              time.Duration
	MaxDelay              time.Duration
}

func (o *PlayOptions) defaults() {
	if o.MinDelay <= 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
}

// Delay returns the pause before an event recorded gap after its
// predecessor.
func (o PlayOptions) Delay(gap time.Duration) time.Duration {
	if o.Instant {
		return 0
	}
	o.defaults()
	return min(max(gap, o.MinDelay), o.MaxDelay)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Player replays macros one step after the other.
type Player struct {
	sleep  SleepFunc
	logger *slog.Logger
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithSleep replaces the pacing clock.
func WithSleep(fn SleepFunc) PlayerOption { return func(p *Player) { p.sleep = fn } }

// NewPlayer creates a Player.
func NewPlayer(logger *slog.Logger, opts ...PlayerOption) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{sleep: sleep, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play replays m against t. A step that cannot be resolved or dispatched is
// recorded in the report and playback continues. Only cancellation of ctx
// stops the replay early; the partial report is returned with ctx.Err().
func (p *Player) Play(ctx context.Context, t dom.Target, m Macro, opts PlayOptions) (*Report, error) {
	opts.defaults()
	rep := &Report{
		RunID:     idgen.Run(),
		Macro:     m.Name,
		Instant:   opts.Instant,
		StartedAt: time.Now(),
		Steps:     make([]StepResult, 0, len(m.Events)),
	}
	defer func() { rep.Duration = time.Since(rep.StartedAt) }()

	for i, ev := range m.Events {
		var delay time.Duration
		if i > 0 {
			delay = opts.Delay(time.Duration(ev.Timestamp-m.Events[i-1].Timestamp) * time.Millisecond)
		}
		if delay > 0 {
			if err := p.sleep(ctx, delay); err != nil {
				rep.Cancelled = true
				p.logger.Info("macro: replay cancelled", "run", rep.RunID, "macro", m.Name, "step", i)
				return rep, err
			}
		}
		if err := ctx.Err(); err != nil {
			rep.Cancelled = true
			return rep, err
		}

		res := p.step(ctx, t, i, ev, opts)
		res.Delay = delay
		if res.Status != StepOK {
			p.logger.Warn("macro: step not replayed",
				"run", rep.RunID, "macro", m.Name, "step", i, "type", ev.Type,
				"selector", ev.Selector, "status", res.Status, "error", res.Error)
		}
		rep.add(res)
	}

	p.logger.Info("macro: replay finished", "run", rep.RunID, "macro", m.Name,
		"executed", rep.Executed, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

func (p *Player) step(ctx context.Context, t dom.Target, i int, ev Event, opts PlayOptions) StepResult {
	res := StepResult{Index: i, Type: ev.Type, Selector: ev.Selector, Status: StepOK}
	fail := func(status string, err error) StepResult {
		res.Status = status
		res.Error = err.Error()
		return res
	}

	if ev.IsNetwork() {
		res.Selector = ""
		res.Resolution = ByNetwork
		if err := t.Fetch(ctx, ev.Request()); err != nil {
			return fail(StepError, err)
		}
		return res
	}

	el, how, err := resolve(ctx, t, ev, opts)
	if err != nil {
		return fail(StepError, err)
	}
	if el == nil {
		return fail(StepSkipped, fmt.Errorf("no element for %q", ev.Selector))
	}
	res.Resolution = how

	if err := dispatch(ctx, el, ev, opts); err != nil {
		return fail(StepError, err)
	}
	return res
}

// resolve finds the target by selector, then by the recorded viewport
// point when coordinate fallback is on.
func resolve(ctx context.Context, t dom.Target, ev Event, opts PlayOptions) (dom.Element, string, error) {
	if ev.Selector != "" {
		el, err := t.Query(ctx, ev.Selector)
		if err != nil {
			return nil, "", err
		}
		if el != nil {
			return el, BySelector, nil
		}
	}
	if opts.UseCoordinateFallback && ev.HasPoint() {
		el, err := t.ElementAt(ctx, ev.Point())
		if err != nil {
			return nil, "", err
		}
		if el != nil {
			return el, ByCoordinates, nil
		}
	}
	return nil, "", nil
}

func dispatch(ctx context.Context, el dom.Element, ev Event, opts PlayOptions) error {
	switch ev.Type {
	case Click, MouseDown, MouseUp, MouseMove:
		at, err := position(ctx, el, ev, opts)
		if err != nil {
			return err
		}
		return el.Mouse(ctx, ev.Type, at, ev.Button, ev.Modifiers)
	case Input, Change:
		return el.Input(ctx, ev.Value, ev.Checked)
	case KeyDown, KeyUp:
		return el.Key(ctx, ev.Type, ev.Key, ev.Code, ev.Modifiers)
	case FocusIn:
		return el.Focus(ctx)
	case FocusOut:
		return el.Blur(ctx)
	case Submit:
		return el.Submit(ctx)
	default:
		return fmt.Errorf("unsupported event type %q", ev.Type)
	}
}

// position returns the client coordinates for a mouse event. With relative
// coordinates the recorded offset is rescaled to the element's current box;
// otherwise, or without relative data, the recorded point is used.
func position(ctx context.Context, el dom.Element, ev Event, opts PlayOptions) (dom.Point, error) {
	if !opts.RelativeCoordinates || !ev.HasRelative() {
		return ev.Point(), nil
	}
	r, err := el.Rect(ctx)
	if err != nil {
		return dom.Point{}, err
	}
	if r.Empty() {
		return ev.Point(), nil
	}
	return dom.Point{
		X: r.X + ev.OffsetX*r.Width/ev.RectW,
		Y: r.Y + ev.OffsetY*r.Height/ev.RectH,
	}, nil
}
