package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/macro"
)

//go:embed recorder.js
var recorderJS string

const recorderBinding = "__formpilot_rec_emit"

// ErrPatchLeaked is returned by a recorder release when the page's fetch or
// XMLHttpRequest primitives are not the originals after uninstall.
var ErrPatchLeaked = errors.New("browser: network patch not restored")

// rawEvent is an event as emitted by recorder.js: the element path instead
// of a selector.
type rawEvent struct {
	macro.Event
	Path []dom.PathNode `json:"path"`
}

// Recorder returns the macro.Hook for this page.
func (p *Page) Recorder() macro.Hook {
	return macro.HookFunc(p.installRecorder)
}

// installRecorder adds the binding, injects recorder.js now and on every
// new document, and forwards events to emit until released.
func (p *Page) installRecorder(ctx context.Context, opts macro.RecordOptions, emit func(macro.Event)) (func(context.Context) error, error) {
	if err := (proto.RuntimeAddBinding{Name: recorderBinding}).Call(p.rod); err != nil {
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}

	recOpts := map[string]any{
		"types":        macro.DOMEventTypes,
		"mouseMoves":   opts.RecordMouseMoves,
		"moveInterval": opts.MouseMoveInterval.Milliseconds(),
		"maxDepth":     dom.MaxSelectorDepth,
	}
	args, err := json.Marshal(recOpts)
	if err != nil {
		return nil, fmt.Errorf("browser: recorder options: %w", err)
	}

	listenCtx, stopListen := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.listenRecorder(listenCtx, emit)
	}()

	removeScript, err := p.rod.EvalOnNewDocument(fmt.Sprintf("(%s)(%q, %s)", recorderJS, recorderBinding, args))
	if err == nil {
		_, err = p.rod.Context(ctx).Eval(recorderJS, recorderBinding, recOpts)
	}
	if err != nil {
		stopListen()
		<-done
		if removeScript != nil {
			_ = removeScript()
		}
		_ = proto.RuntimeRemoveBinding{Name: recorderBinding}.Call(p.rod)
		return nil, fmt.Errorf("browser: inject recorder: %w", err)
	}
	p.logger.Debug("browser: recorder installed", "url", p.URL())

	var once sync.Once
	var releaseErr error
	release := func(ctx context.Context) error {
		once.Do(func() {
			releaseErr = p.uninstallRecorder(ctx, removeScript)
			stopListen()
			<-done
		})
		return releaseErr
	}
	return release, nil
}

func (p *Page) listenRecorder(ctx context.Context, emit func(macro.Event)) {
	p.rod.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != recorderBinding {
			return
		}
		var raw rawEvent
		if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
			p.logger.Warn("browser: parse recorder payload", "error", err)
			return
		}
		ev := raw.Event
		if !ev.IsNetwork() {
			ev.Selector = dom.Selector(raw.Path)
		}
		emit(ev)
	})()
}

// uninstallRecorder restores the page and checks the network primitives
// are the originals again. Every step runs even when an earlier one fails.
func (p *Page) uninstallRecorder(ctx context.Context, removeScript func() error) error {
	var errs []error
	if err := removeScript(); err != nil {
		errs = append(errs, fmt.Errorf("remove new-document script: %w", err))
	}

	res, err := p.rod.Context(ctx).Eval(`() => window.__formpilot_rec ? window.__formpilot_rec.uninstall() : '{"restored":true}'`)
	if err != nil {
		errs = append(errs, fmt.Errorf("uninstall: %w", err))
	} else {
		var out struct {
			Restored bool `json:"restored"`
		}
		if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
			errs = append(errs, fmt.Errorf("uninstall: decode: %w", err))
		} else if !out.Restored {
			errs = append(errs, ErrPatchLeaked)
		}
	}

	if err := (proto.RuntimeRemoveBinding{Name: recorderBinding}).Call(p.rod); err != nil {
		errs = append(errs, fmt.Errorf("remove binding: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("browser: release recorder: %w", errors.Join(errs...))
	}
	p.logger.Debug("browser: recorder released", "url", p.URL())
	return nil
}
