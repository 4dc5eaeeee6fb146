package dom

import "context"

// Request is a network call to reissue during replay.
type Request struct {
	// Kind is "fetch" or "xhr".
	Kind    string            `json:"kind"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Element is a resolved replay target.
type Element interface {
	Rect(ctx context.Context) (Rect, error)
	// Mouse dispatches a MouseEvent of type typ (click, mousedown, ...).
	Mouse(ctx context.Context, typ string, at Point, button int, mods Modifiers) error
	// Input sets the value (and checked state when non-nil) and dispatches a
	// bubbling input event.
	Input(ctx context.Context, value string, checked *bool) error
	// Key dispatches a KeyboardEvent of type typ (keydown, keyup).
	Key(ctx context.Context, typ, key, code string, mods Modifiers) error
	Focus(ctx context.Context) error
	Blur(ctx context.Context) error
	// Submit submits the element's form (or the element when it is a form).
	Submit(ctx context.Context) error
}

// Target is a page macros can be replayed against.
type Target interface {
	// Query returns the first element matching selector, or nil when none.
	Query(ctx context.Context, selector string) (Element, error)
	// ElementAt hit-tests a viewport point, or returns nil.
	ElementAt(ctx context.Context, p Point) (Element, error)
	// Fetch reissues req and waits for it to complete.
	Fetch(ctx context.Context, req Request) error
}
