// CLAUDE:SUMMARY Form filler: matches every data control of a document against the profile and applies values by field kind.
// Package filler fills the data controls of a dom.Document from a profile.
package filler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/matcher"
	"github.com/hazyhaar/formpilot/trainer"
)

// Settings are the filler options read from the shared settings object.
type Settings struct {
	CollectSkipped    bool
	OverwriteExisting bool
	LogSkipped        bool
	// LegacyEvents adds change and blur after the input event.
	LegacyEvents bool
	// Highlight outlines filled fields for HighlightDuration.
	Highlight         bool
	HighlightDuration time.Duration
}

// DefaultSettings mirror the shipped defaults.
func DefaultSettings() Settings {
	return Settings{
		CollectSkipped:    true,
		OverwriteExisting: true,
		HighlightDuration: 1500 * time.Millisecond,
	}
}

// Report summarises one fill run.
type Report struct {
	Host      string                 `json:"host"`
	Fields    int                    `json:"fields"`
	Filled    int                    `json:"filled"`
	Preserved int                    `json:"preserved"`
	Errors    int                    `json:"errors"`
	Skipped   []trainer.SkippedField `json:"skipped"`
}

// Filler applies profile values to documents.
type Filler struct {
	m      *matcher.Matcher
	logger *slog.Logger
}

// New creates a Filler using m for field matching.
func New(m *matcher.Matcher, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{m: m, logger: logger}
}

// Fill fills doc and returns the fields that could not be matched.
func (f *Filler) Fill(ctx context.Context, doc dom.Document, profile matcher.Profile, s Settings) ([]trainer.SkippedField, error) {
	rep, err := f.FillReport(ctx, doc, profile, s)
	if err != nil {
		return nil, err
	}
	return rep.Skipped, nil
}

// FillReport is Fill with the full run summary. Only a failure to list the
// document's fields is returned as an error; a field that cannot be written
// is logged and skipped.
func (f *Filler) FillReport(ctx context.Context, doc dom.Document, profile matcher.Profile, s Settings) (*Report, error) {
	fields, err := doc.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("filler: list fields: %w", err)
	}

	rep := &Report{Host: doc.Host(), Skipped: []trainer.SkippedField{}}
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !dom.IsDataControl(field.Tag, field.Type) {
			continue
		}
		rep.Fields++

		res := f.m.MatchForFill(profile, field)
		value, ok := profile[res.Key]
		if !res.Matched() || !ok {
			f.skip(rep, field, profile, s)
			continue
		}

		if !s.OverwriteExisting && field.HasValue() {
			rep.Preserved++
			continue
		}

		if err := f.apply(ctx, doc, field, value, s); err != nil {
			rep.Errors++
			f.logger.Warn("filler: apply failed",
				"host", rep.Host, "field", field.Identity(), "key", res.Key, "error", err)
			continue
		}
		rep.Filled++
	}

	f.logger.Info("filler: form filled",
		"host", rep.Host, "fields", rep.Fields, "filled", rep.Filled,
		"preserved", rep.Preserved, "skipped", len(rep.Skipped), "errors", rep.Errors)
	return rep, nil
}

func (f *Filler) skip(rep *Report, field dom.Field, profile matcher.Profile, s Settings) {
	if !s.CollectSkipped {
		return
	}
	label := field.LabelText()
	guess, score := f.m.Best(profile, label)
	rep.Skipped = append(rep.Skipped, trainer.SkippedField{
		Field: field,
		Label: label,
		Guess: guess,
		Score: score,
	})
	if s.LogSkipped {
		f.logger.Info("filler: field skipped",
			"host", rep.Host, "field", field.Identity(), "label", label,
			"guess", guess, "score", score)
	}
}

// apply writes value into field according to its kind and notifies the page.
func (f *Filler) apply(ctx context.Context, doc dom.Document, field dom.Field, value string, s Settings) error {
	var err error
	switch field.Kind() {
	case dom.Checkbox:
		on := strings.EqualFold(value, "true") || value == field.Value
		err = doc.SetChecked(ctx, field, on)
	case dom.Radio:
		err = doc.SetChecked(ctx, field, field.Value == value)
	case dom.TextLike, dom.Selectable:
		err = doc.SetValue(ctx, field, value)
	}
	if err != nil {
		return err
	}

	events := []string{"input"}
	if s.LegacyEvents {
		events = append(events, "change", "blur")
	}
	if err := doc.Dispatch(ctx, field, events...); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	if s.Highlight {
		if err := doc.Highlight(ctx, field, s.HighlightDuration); err != nil {
			f.logger.Debug("filler: highlight failed", "field", field.Identity(), "error", err)
		}
	}
	return nil
}
