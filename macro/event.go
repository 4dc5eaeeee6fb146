// CLAUDE:SUMMARY Macro engine: recorded event model, recorder state machine with scoped page hook, paced replay with selector/coordinate resolution.
// Package macro records user interactions and page network calls as named
// macros and replays them against a dom.Target.
//
// Recording is a two-state machine (idle, recording). Entering the recording
// state acquires a Hook (page listeners plus the fetch/XHR patch) and leaving
// it releases the hook on every path. Replay executes events strictly in
// recorded order, pacing them by their recorded gaps clamped to
// [MinDelay, MaxDelay].
package macro

import (
	"errors"

	"github.com/hazyhaar/formpilot/dom"
)

// Recorded event types.
const (
	Click     = "click"
	MouseDown = "mousedown"
	MouseUp   = "mouseup"
	MouseMove = "mousemove"
	Input     = "input"
	Change    = "change"
	KeyDown   = "keydown"
	KeyUp     = "keyup"
	FocusIn   = "focusin"
	FocusOut  = "focusout"
	Submit    = "submit"
	Fetch     = "fetch"
	XHR       = "xhr"
)

// DOMEventTypes are the page events the recorder listens to in the capture
// phase. MouseMove is added only when mouse moves are recorded.
var DOMEventTypes = []string{Click, Input, Change, MouseDown, MouseUp, KeyDown, KeyUp, FocusIn, FocusOut, Submit}

// Errors returned by the recorder and engine. ErrPersist wraps a store
// failure while saving a recording.
var (
	ErrAlreadyRecording = errors.New("macro: already recording")
	ErrNotRecording     = errors.New("macro: not recording")
	ErrEmptyRecording   = errors.New("macro: nothing recorded")
	ErrMacroNotFound    = errors.New("macro: not found")
	ErrEmptyName        = errors.New("macro: empty macro name")
	ErrPersist          = errors.New("macro: persist failed")
)

// Event is one recorded step: a DOM interaction or a network call,
// discriminated by Type.
type Event struct {
	Type string `json:"type"`

	// DOM interaction.
	Selector  string        `json:"selector,omitempty"`
	Value     string        `json:"value,omitempty"`
	Checked   *bool         `json:"checked,omitempty"`
	Key       string        `json:"key,omitempty"`
	Code      string        `json:"code,omitempty"`
	Button    int           `json:"button,omitempty"`
	ClientX   float64       `json:"clientX,omitempty"`
	ClientY   float64       `json:"clientY,omitempty"`
	OffsetX   float64       `json:"offsetX,omitempty"`
	OffsetY   float64       `json:"offsetY,omitempty"`
	RectW     float64       `json:"rectW,omitempty"`
	RectH     float64       `json:"rectH,omitempty"`
	Modifiers dom.Modifiers `json:"modifiers"`

	// Network call.
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// IsNetwork reports whether e is a reissuable fetch/XHR call.
func (e Event) IsNetwork() bool { return e.Type == Fetch || e.Type == XHR }

// Request converts a network event into a dom.Request.
func (e Event) Request() dom.Request {
	return dom.Request{Kind: e.Type, Method: e.Method, URL: e.URL, Headers: e.Headers, Body: e.Body}
}

// Point is the recorded absolute viewport position.
func (e Event) Point() dom.Point { return dom.Point{X: e.ClientX, Y: e.ClientY} }

// HasPoint reports whether the event carries viewport coordinates.
func (e Event) HasPoint() bool { return e.ClientX != 0 || e.ClientY != 0 }

// HasRelative reports whether the event carries element-relative data.
func (e Event) HasRelative() bool { return e.RectW > 0 && e.RectH > 0 }

// Macro is a named, ordered, non-empty sequence of events.
type Macro struct {
	Name   string  `json:"name"`
	Events []Event `json:"events"`
}

// Macros maps macro names to their events.
type Macros map[string][]Event
