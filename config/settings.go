// CLAUDE:SUMMARY Shared settings object (JSON for users, YAML for the service), strict parsing, defaults and conversion to component options.
// Package config holds the formpilot settings object read by the filler,
// the matcher and the macro engine, and the YAML service configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/formpilot/filler"
	"github.com/hazyhaar/formpilot/macro"
	"github.com/hazyhaar/formpilot/matcher"
)

// ErrInvalidInput marks user-input errors: malformed or invalid profile and
// settings text. Nothing is written when it is returned.
var ErrInvalidInput = errors.New("config: invalid input")

// Settings is the shared settings object. Durations are in milliseconds
// so the JSON form stays hand-editable.
type Settings struct {
	CollectSkipped    bool `json:"collectSkipped" yaml:"collect_skipped"`
	OverwriteExisting bool `json:"overwriteExisting" yaml:"overwrite_existing"`
	LogSkipped        bool `json:"logSkipped" yaml:"log_skipped"`

	RecordMouseMoves      bool `json:"recordMouseMoves" yaml:"record_mouse_moves"`
	MouseMoveInterval     int  `json:"mouseMoveInterval" yaml:"mouse_move_interval"`
	UseCoordinateFallback bool `json:"useCoordinateFallback" yaml:"use_coordinate_fallback"`
	RelativeCoordinates   bool `json:"relativeCoordinates" yaml:"relative_coordinates"`
	MinDelay              int  `json:"minDelay" yaml:"min_delay"`
	MaxDelay              int  `json:"maxDelay" yaml:"max_delay"`

	SimilarityThreshold float64 `json:"similarityThreshold" yaml:"similarity_threshold"`
	FillThreshold       float64 `json:"fillThreshold" yaml:"fill_threshold"`
	LearnThreshold      float64 `json:"learnThreshold" yaml:"learn_threshold"`
	LearningMode        bool    `json:"learningMode" yaml:"learning_mode"`

	LegacyEvents      bool `json:"legacyEvents" yaml:"legacy_events"`
	Highlight         bool `json:"highlight" yaml:"highlight"`
	HighlightDuration int  `json:"highlightDuration" yaml:"highlight_duration"`
}

// DefaultSettings returns the shipped defaults.
func DefaultSettings() Settings {
	return Settings{
		CollectSkipped:        true,
		OverwriteExisting:     true,
		MouseMoveInterval:     100,
		UseCoordinateFallback: true,
		RelativeCoordinates:   true,
		MinDelay:              50,
		MaxDelay:              3000,
		SimilarityThreshold:   0.6,
		FillThreshold:         0.3,
		LearnThreshold:        0.8,
		Highlight:             true,
		HighlightDuration:     1500,
	}
}

// Validate checks ranges. Thresholds must lie in (0,1]: a zero threshold
// would read as "unset" downstream and silently revert to the default.
func (s Settings) Validate() error {
	for name, v := range map[string]float64{
		"similarityThreshold": s.SimilarityThreshold,
		"fillThreshold":       s.FillThreshold,
		"learnThreshold":      s.LearnThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s %v outside (0,1]", ErrInvalidInput, name, v)
		}
	}
	for name, v := range map[string]int{
		"mouseMoveInterval": s.MouseMoveInterval,
		"minDelay":          s.MinDelay,
		"maxDelay":          s.MaxDelay,
		"highlightDuration": s.HighlightDuration,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, name)
		}
	}
	if s.MaxDelay < s.MinDelay {
		return fmt.Errorf("%w: maxDelay %d below minDelay %d", ErrInvalidInput, s.MaxDelay, s.MinDelay)
	}
	return nil
}

// ParseSettingsJSON decodes user-edited settings over the defaults. Unknown
// keys, trailing data and out-of-range values are rejected.
func ParseSettingsJSON(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := decodeStrict(data, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: settings: %v", ErrInvalidInput, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ParseProfileJSON decodes a profile: a JSON object of string values with
// non-empty keys.
func ParseProfileJSON(data []byte) (matcher.Profile, error) {
	var raw map[string]json.RawMessage
	if err := decodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", ErrInvalidInput, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: profile: expected a JSON object", ErrInvalidInput)
	}
	p := make(matcher.Profile, len(raw))
	for k, v := range raw {
		if k == "" {
			return nil, fmt.Errorf("%w: profile: empty key", ErrInvalidInput)
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: profile: value of %q is not a string", ErrInvalidInput, k)
		}
		p[k] = s
	}
	return p, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// MatcherOptions maps the thresholds onto matcher options.
func (s Settings) MatcherOptions() matcher.Options {
	return matcher.Options{
		Threshold:      s.SimilarityThreshold,
		FillThreshold:  s.FillThreshold,
		LearnThreshold: s.LearnThreshold,
	}
}

// FillerSettings maps the settings onto filler options.
func (s Settings) FillerSettings() filler.Settings {
	return filler.Settings{
		CollectSkipped:    s.CollectSkipped,
		OverwriteExisting: s.OverwriteExisting,
		LogSkipped:        s.LogSkipped,
		LegacyEvents:      s.LegacyEvents,
		Highlight:         s.Highlight,
		HighlightDuration: ms(s.HighlightDuration),
	}
}

// RecordOptions maps the settings onto recorder options.
func (s Settings) RecordOptions() macro.RecordOptions {
	return macro.RecordOptions{
		RecordMouseMoves:  s.RecordMouseMoves,
		MouseMoveInterval: ms(s.MouseMoveInterval),
	}
}

// PlayOptions maps the settings onto replay options.
func (s Settings) PlayOptions(instant bool) macro.PlayOptions {
	return macro.PlayOptions{
		Instant:               instant,
		UseCoordinateFallback: s.UseCoordinateFallback,
		RelativeCoordinates:   s.RelativeCoordinates,
		MinDelay:              ms(s.MinDelay),
		MaxDelay:              ms(s.MaxDelay),
	}
}
