// CLAUDE:SUMMARY Page model shared by the matcher, filler and replay engine: fillable field snapshots, kinds, geometry.
// Package dom models the parts of a web page formpilot reads and mutates.
//
// Backends (dom/htmldoc for parsed HTML, browser for a live Chrome tab)
// implement Document. Everything above them works on Field snapshots and
// never touches a real DOM.
package dom

import (
	"context"
	"strings"
	"time"
)

// Kind is the value-application variant of a fillable field.
type Kind int

const (
	TextLike   Kind = iota // input[type=text|email|...], textarea
	Checkbox               // input[type=checkbox]
	Radio                  // input[type=radio]
	Selectable             // select
)

func (k Kind) String() string {
	switch k {
	case Checkbox:
		return "checkbox"
	case Radio:
		return "radio"
	case Selectable:
		return "select"
	default:
		return "text"
	}
}

// Classify resolves the Kind of a control from its tag and type attribute.
func Classify(tag, typ string) Kind {
	switch strings.ToLower(tag) {
	case "select":
		return Selectable
	case "input":
		switch strings.ToLower(typ) {
		case "checkbox":
			return Checkbox
		case "radio":
			return Radio
		}
	}
	return TextLike
}

// IsDataControl reports whether a control carries user data. Buttons and
// hidden inputs are excluded from filling entirely.
func IsDataControl(tag, typ string) bool {
	switch strings.ToLower(tag) {
	case "input":
		switch strings.ToLower(typ) {
		case "button", "submit", "reset", "hidden", "image":
			return false
		}
		return true
	case "select", "textarea":
		return true
	}
	return false
}

// Field is a snapshot of one input, select or textarea.
type Field struct {
	// Ref is the backend handle used to address the element again.
	Ref string `json:"ref"`
	// Host is the site context (hostname) of the owning document.
	Host string `json:"host"`

	Tag  string `json:"tag"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`

	// Value is the current value; for checkbox and radio it is the value
	// attribute.
	Value   string `json:"value,omitempty"`
	Checked bool   `json:"checked,omitempty"`

	// Label is the resolved <label> text, empty when none is associated.
	Label string `json:"label,omitempty"`
}

// Identity is the field's name, else its id. Override mappings are keyed on it.
func (f Field) Identity() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// Kind classifies the field.
func (f Field) Kind() Kind { return Classify(f.Tag, f.Type) }

// HasValue reports whether the field already holds user data.
func (f Field) HasValue() bool {
	switch f.Kind() {
	case Checkbox, Radio:
		return f.Checked
	default:
		return f.Value != ""
	}
}

// LabelText is the string the matcher tokenizes: label then identity.
func (f Field) LabelText() string {
	return strings.TrimSpace(f.Label + " " + f.Identity())
}

// Document is a page whose fields can be read and filled.
type Document interface {
	// Host returns the site context of the document.
	Host() string
	// Fields lists every input, select and textarea in document order.
	Fields(ctx context.Context) ([]Field, error)
	SetValue(ctx context.Context, f Field, value string) error
	SetChecked(ctx context.Context, f Field, checked bool) error
	// Dispatch fires bubbling synthetic events of the given types on f.
	Dispatch(ctx context.Context, f Field, events ...string) error
	// Highlight outlines f for d. It must not block.
	Highlight(ctx context.Context, f Field, d time.Duration) error
}
