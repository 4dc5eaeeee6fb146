package macro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/dom/htmldoc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	macros Macros
	saves  int
}

func newMemStore() *memStore { return &memStore{macros: Macros{}} }

func (s *memStore) LoadMacros(context.Context) (Macros, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Macros, len(s.macros))
	for k, v := range s.macros {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveMacro(_ context.Context, name string, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros[name] = events
	s.saves++
	return nil
}

func (s *memStore) DeleteMacro(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.macros[name]; !ok {
		return ErrMacroNotFound
	}
	delete(s.macros, name)
	return nil
}

func (s *memStore) RenameMacro(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.macros[from]
	if !ok {
		return ErrMacroNotFound
	}
	delete(s.macros, from)
	s.macros[to] = ev
	return nil
}

// patchHook mimics the page network patch: installing swaps the current
// primitive for a wrapper, releasing must put the original back.
type patchHook struct {
	original   *int
	current    *int
	installErr error
	releaseErr error
	emit       func(Event)
	released   int
}

func newPatchHook() *patchHook {
	orig := new(int)
	return &patchHook{original: orig, current: orig}
}

func (h *patchHook) Install(_ context.Context, _ RecordOptions, emit func(Event)) (func(context.Context) error, error) {
	if h.installErr != nil {
		return nil, h.installErr
	}
	saved := h.current
	h.current = new(int)
	h.emit = emit
	return func(context.Context) error {
		h.current = saved
		h.released++
		return h.releaseErr
	}, nil
}

func (h *patchHook) restored() bool { return h.current == h.original }

func TestEngine_EmptyRecordingLeavesStoreUnchanged(t *testing.T) {
	store := newMemStore()
	store.macros["existing"] = []Event{{Type: Click, Selector: "#a"}}
	e := NewEngine(store, nil, nil)
	hook := newPatchHook()
	ctx := context.Background()

	if _, err := e.StartRecording(ctx, hook, "login", RecordOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if hook.restored() {
		t.Fatal("hook not installed")
	}
	_, err := e.StopRecording(ctx)
	if !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("stop = %v, want ErrEmptyRecording", err)
	}
	if store.saves != 0 || len(store.macros) != 1 {
		t.Fatalf("store changed: saves=%d macros=%v", store.saves, store.macros)
	}
	if !hook.restored() || hook.released != 1 {
		t.Fatalf("hook restored=%v released=%d", hook.restored(), hook.released)
	}
}

func TestEngine_RecordPersistsAndRestoresHook(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, nil, nil)
	hook := newPatchHook()
	ctx := context.Background()

	id, err := e.StartRecording(ctx, hook, "login", RecordOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.StartRecording(ctx, newPatchHook(), "other", RecordOptions{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second start = %v, want ErrAlreadyRecording", err)
	}
	if gotID, name, ok := e.Recorder().Session(); !ok || gotID != id || name != "login" {
		t.Fatalf("session = %q %q %v", gotID, name, ok)
	}

	hook.emit(Event{Type: Click, Selector: "#submit", Timestamp: 1000})
	hook.emit(Event{Type: Fetch, Method: "POST", URL: "/api", Timestamp: 1200})

	m, err := e.StopRecording(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(m.Events) != 2 || len(store.macros["login"]) != 2 {
		t.Fatalf("macro = %+v, stored %v", m, store.macros)
	}
	if !hook.restored() {
		t.Fatal("network patch leaked past stop")
	}

	// Late events from the page are dropped once idle.
	hook.emit(Event{Type: Click, Selector: "#late"})
	if _, err := e.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("stop while idle = %v, want ErrNotRecording", err)
	}
	if e.Recorder().State() != Idle {
		t.Fatal("recorder not idle")
	}
}

func TestRecorder_HookFailures(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil)

	bad := newPatchHook()
	bad.installErr = errors.New("page gone")
	if _, err := r.Start(ctx, bad, "x", RecordOptions{}); err == nil {
		t.Fatal("expected install error")
	}
	if r.State() != Idle {
		t.Fatal("failed install left recorder recording")
	}

	hook := newPatchHook()
	hook.releaseErr = errors.New("target closed")
	if _, err := r.Start(ctx, hook, "x", RecordOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Capture(Event{Type: Click, Selector: "#a"})
	m, err := r.Stop(ctx)
	if err == nil || errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("stop = %v, want release error only", err)
	}
	if len(m.Events) != 1 || r.State() != Idle || hook.released != 1 {
		t.Fatalf("events=%d state=%v released=%d", len(m.Events), r.State(), hook.released)
	}

	if _, err := r.Start(ctx, newPatchHook(), "", RecordOptions{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRecorder_KeepsEventsEmittedDuringInstall(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(nil)
	hook := HookFunc(func(_ context.Context, _ RecordOptions, emit func(Event)) (func(context.Context) error, error) {
		emit(Event{Type: Click, Selector: "#early", Timestamp: 10})
		return func(context.Context) error { return nil }, nil
	})

	if _, err := r.Start(ctx, hook, "early", RecordOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	m, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(m.Events) != 1 || m.Events[0].Selector != "#early" {
		t.Fatalf("events = %+v", m.Events)
	}
}

func TestRecorder_MouseMoves(t *testing.T) {
	ctx := context.Background()
	moves := []int64{1000, 1050, 1100, 1250}

	r := NewRecorder(nil)
	r.Start(ctx, newPatchHook(), "m", RecordOptions{RecordMouseMoves: true, MouseMoveInterval: 100 * time.Millisecond})
	for _, ts := range moves {
		r.Capture(Event{Type: MouseMove, Timestamp: ts})
	}
	m, _ := r.Stop(ctx)
	if len(m.Events) != 3 || m.Events[1].Timestamp != 1100 || m.Events[2].Timestamp != 1250 {
		t.Fatalf("throttled moves = %+v", m.Events)
	}

	r.Start(ctx, newPatchHook(), "m", RecordOptions{})
	for _, ts := range moves {
		r.Capture(Event{Type: MouseMove, Timestamp: ts})
	}
	r.Capture(Event{Type: Click, Selector: "#a"})
	m, _ = r.Stop(ctx)
	if len(m.Events) != 1 || m.Events[0].Timestamp == 0 {
		t.Fatalf("events = %+v, want only the stamped click", m.Events)
	}
}

const page = `<form id="f">
<button id="submit" type="button">Go</button>
<input id="note">
<input id="other">
<div id="box">x</div>
</form>`

func parsePage(t *testing.T) *htmldoc.Document {
	t.Helper()
	d, err := htmldoc.ParseString(page, "https://example.com/")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func TestPlay_PacesByRecordedGap(t *testing.T) {
	m := Macro{Name: "note", Events: []Event{
		{Type: Click, Selector: "#submit", Timestamp: 0},
		{Type: Input, Selector: "#note", Value: "hi", Timestamp: 600},
	}}

	var s recordedSleeps
	d := parsePage(t)
	rep, err := NewPlayer(nil, WithSleep(s.sleep)).Play(context.Background(), d, m, PlayOptions{})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(s.delays) != 1 || s.delays[0] != 600*time.Millisecond {
		t.Fatalf("delays = %v, want [600ms]", s.delays)
	}
	if rep.Executed != 2 || rep.Steps[1].Delay != 600*time.Millisecond {
		t.Fatalf("report = %+v", rep)
	}
	ev := d.Events()
	if len(ev) != 2 || ev[0].Type != "click" || ev[1].Type != "input" || ev[1].Value != "hi" {
		t.Fatalf("dispatched %+v", ev)
	}

	var instant recordedSleeps
	if _, err := NewPlayer(nil, WithSleep(instant.sleep)).Play(context.Background(), parsePage(t), m, PlayOptions{Instant: true}); err != nil {
		t.Fatalf("instant: %v", err)
	}
	if len(instant.delays) != 0 {
		t.Fatalf("instant replay slept %v", instant.delays)
	}
}

func TestPlayOptions_DelayIsClamped(t *testing.T) {
	tests := []struct {
		gap, want time.Duration
	}{
		{0, 50 * time.Millisecond},
		{10 * time.Millisecond, 50 * time.Millisecond},
		{600 * time.Millisecond, 600 * time.Millisecond},
		{10 * time.Minute, 3 * time.Second},
		{-time.Second, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := (PlayOptions{}).Delay(tt.gap); got != tt.want {
			t.Errorf("Delay(%v) = %v, want %v", tt.gap, got, tt.want)
		}
	}
	if got := (PlayOptions{Instant: true}).Delay(time.Second); got != 0 {
		t.Errorf("instant delay = %v", got)
	}
	custom := PlayOptions{MinDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	if got := custom.Delay(time.Second); got != 20*time.Millisecond {
		t.Errorf("custom max = %v", got)
	}
}

func TestPlay_MissingSelectorSkipsOnlyThatStep(t *testing.T) {
	d := parsePage(t)
	m := Macro{Name: "m", Events: []Event{
		{Type: Input, Selector: "#note", Value: "a"},
		{Type: Input, Selector: "#removed", Value: "b"},
		{Type: Input, Selector: "#other", Value: "c"},
	}}
	rep, err := NewPlayer(nil).Play(context.Background(), d, m, PlayOptions{Instant: true})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if rep.Executed != 2 || rep.Skipped != 1 || rep.SelectorFailures["#removed"] != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if v, _, _ := d.Value("#other"); v != "c" {
		t.Fatalf("step after the missing one did not run: %q", v)
	}
}

func TestPlay_CoordinateFallbackAndRelativeCoordinates(t *testing.T) {
	d := parsePage(t)
	if err := d.SetLayout("#box", dom.Rect{X: 100, Y: 100, Width: 200, Height: 100}); err != nil {
		t.Fatalf("layout: %v", err)
	}
	ev := Event{
		Type: Click, Selector: ".renamed",
		ClientX: 110, ClientY: 105,
		OffsetX: 10, OffsetY: 5, RectW: 100, RectH: 50,
	}
	m := Macro{Name: "m", Events: []Event{ev}}
	ctx := context.Background()

	rep, _ := NewPlayer(nil).Play(ctx, d, m, PlayOptions{Instant: true})
	if rep.Skipped != 1 {
		t.Fatalf("resolved without fallback: %+v", rep)
	}

	rep, _ = NewPlayer(nil).Play(ctx, d, m, PlayOptions{Instant: true, UseCoordinateFallback: true})
	if rep.Executed != 1 || rep.Steps[0].Resolution != ByCoordinates {
		t.Fatalf("report = %+v", rep)
	}
	got := d.Events()
	if last := got[len(got)-1]; last.X != 110 || last.Y != 105 {
		t.Fatalf("absolute click at %v,%v", last.X, last.Y)
	}

	// The box doubled in size since recording: the offset scales with it.
	rep, _ = NewPlayer(nil).Play(ctx, d, m, PlayOptions{Instant: true, UseCoordinateFallback: true, RelativeCoordinates: true})
	got = d.Events()
	if last := got[len(got)-1]; rep.Executed != 1 || last.X != 120 || last.Y != 110 {
		t.Fatalf("relative click at %v,%v", last.X, last.Y)
	}
}

// netTarget wraps a document and records reissued network calls in order
// with DOM dispatches.
type netTarget struct {
	*htmldoc.Document
	order *[]string
	err   error
}

func (n netTarget) Fetch(_ context.Context, req dom.Request) error {
	*n.order = append(*n.order, req.Kind+" "+req.Method+" "+req.URL)
	return n.err
}

func TestPlay_NetworkStepsInOrder(t *testing.T) {
	d := parsePage(t)
	var order []string
	target := netTarget{Document: d, order: &order}
	m := Macro{Name: "m", Events: []Event{
		{Type: Fetch, Method: "POST", URL: "/api/a"},
		{Type: Submit, Selector: "#note"},
		{Type: XHR, Method: "GET", URL: "/api/b"},
		{Type: "wheel", Selector: "#note"},
	}}
	rep, err := NewPlayer(nil).Play(context.Background(), target, m, PlayOptions{Instant: true})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(order) != 2 || order[0] != "fetch POST /api/a" || order[1] != "xhr GET /api/b" {
		t.Fatalf("network order = %v", order)
	}
	if rep.Executed != 3 || rep.Failed != 1 || rep.Steps[3].Status != StepError {
		t.Fatalf("report = %+v", rep)
	}

	target.err = errors.New("offline")
	rep, _ = NewPlayer(nil).Play(context.Background(), target, m, PlayOptions{Instant: true})
	if rep.Failed != 3 || rep.Executed != 1 {
		t.Fatalf("failing network: %+v", rep)
	}
}

func TestEngine_PlayMissingMacroIsNoop(t *testing.T) {
	e := NewEngine(newMemStore(), nil, nil)
	rep, err := e.Play(context.Background(), parsePage(t), "ghost", PlayOptions{})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !rep.Missing || len(rep.Steps) != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestEngine_NewRecordingCancelsReplay(t *testing.T) {
	store := newMemStore()
	store.macros["slow"] = []Event{
		{Type: Click, Selector: "#submit", Timestamp: 0},
		{Type: Click, Selector: "#submit", Timestamp: 2000},
	}
	entered := make(chan struct{})
	blocking := func(ctx context.Context, _ time.Duration) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}
	e := NewEngine(store, NewPlayer(nil, WithSleep(blocking)), nil)
	ctx := context.Background()

	type result struct {
		rep *Report
		err error
	}
	done := make(chan result, 1)
	doc := parsePage(t)
	go func() {
		rep, err := e.Play(ctx, doc, "slow", PlayOptions{})
		done <- result{rep, err}
	}()

	<-entered
	if _, err := e.StartRecording(ctx, newPatchHook(), "new", RecordOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) || !res.rep.Cancelled || res.rep.Executed != 1 {
			t.Fatalf("replay = %+v, %v", res.rep, res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("replay was not cancelled")
	}
	if err := e.AbortRecording(ctx); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

func TestEngine_ListDeleteRename(t *testing.T) {
	store := newMemStore()
	store.macros["b"] = []Event{{Type: Click}}
	store.macros["a"] = []Event{{Type: Click}}
	e := NewEngine(store, nil, nil)
	ctx := context.Background()

	names, err := e.List(ctx)
	if err != nil || len(names) != 2 || names[0] != "a" {
		t.Fatalf("list = %v, %v", names, err)
	}
	if err := e.Rename(ctx, "a", "c"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := e.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.Delete(ctx, "b"); !errors.Is(err, ErrMacroNotFound) {
		t.Fatalf("delete missing = %v", err)
	}
	if err := e.Rename(ctx, "c", ""); err == nil {
		t.Fatal("expected error for empty target name")
	}
	names, _ = e.List(ctx)
	if len(names) != 1 || names[0] != "c" {
		t.Fatalf("names = %v", names)
	}
}
