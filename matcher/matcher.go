// CLAUDE:SUMMARY Heuristic field matcher: token prefix similarity between a field's label and profile keys, with per-site override mappings and learning-mode capture.
// Package matcher decides which profile key a form field asks for.
//
// A field's label text (associated <label> plus its name or id) is tokenized
// and scored against every profile key with a cheap character-prefix
// similarity. Per-site override mappings learned by the trainer beat any
// computed score.
package matcher

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/formpilot/dom"
)

// Profile maps semantic keys ("first name") to the values to fill.
type Profile map[string]string

// Keys returns the profile keys in lexical order. Matching iterates in this
// order so ties resolve the same way on every run.
func (p Profile) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mappings is the override table: site context → field identity → profile key.
type Mappings map[string]map[string]string

// Lookup returns the override key for (context, identity).
func (m Mappings) Lookup(context, identity string) (string, bool) {
	if identity == "" {
		return "", false
	}
	key, ok := m[context][identity]
	return key, ok
}

// Set records an override.
func (m Mappings) Set(context, identity, key string) {
	site, ok := m[context]
	if !ok {
		site = make(map[string]string)
		m[context] = site
	}
	site[identity] = key
}

// Merge adds every entry of delta to m. Entries of other contexts and fields
// are left alone; an entry present in both takes delta's key.
func (m Mappings) Merge(delta Mappings) {
	for ctx, fields := range delta {
		for id, key := range fields {
			m.Set(ctx, id, key)
		}
	}
}

// Len counts entries across all contexts.
func (m Mappings) Len() int {
	n := 0
	for _, fields := range m {
		n += len(fields)
	}
	return n
}

// Result is the outcome of matching one field. Key is empty when nothing
// cleared the threshold.
type Result struct {
	Key    string  `json:"key,omitempty"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Matched reports whether a key was selected.
func (r Result) Matched() bool { return r.Key != "" }

// Reasons.
const (
	ReasonOverride   = "override"
	ReasonSimilarity = "similarity"
	ReasonBelow      = "below_threshold"
	ReasonNoTokens   = "no_tokens"
	ReasonNoProfile  = "empty_profile"
)

// SkipSink receives low-confidence fields while learning mode is on.
type SkipSink interface {
	Skip(f dom.Field, label, guess string, score float64)
}

// Options tune scoring. Zero values select the defaults.
type Options struct {
	// Threshold gates Match. Default 0.6.
	Threshold float64
	// FillThreshold gates MatchForFill. Default 0.3.
	FillThreshold float64
	// LearnThreshold: in learning mode, fields whose best score falls below
	// it are handed to the SkipSink. Default 0.8.
	LearnThreshold float64
	// StopWords replaces DefaultStopWords when non-nil.
	StopWords []string
}

func (o *Options) defaults() {
	if o.Threshold <= 0 {
		o.Threshold = 0.6
	}
	if o.FillThreshold <= 0 {
		o.FillThreshold = 0.3
	}
	if o.LearnThreshold <= 0 {
		o.LearnThreshold = 0.8
	}
	if o.StopWords == nil {
		o.StopWords = DefaultStopWords
	}
}

// Matcher scores fields against a profile. It is safe for concurrent use as
// long as the Mappings it was given are not mutated concurrently.
type Matcher struct {
	opts     Options
	stop     stopSet
	mappings Mappings
	sink     SkipSink
	logger   *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMappings sets the override table.
func WithMappings(m Mappings) Option { return func(mt *Matcher) { mt.mappings = m } }

// WithLearning turns learning mode on: low-confidence fields go to sink.
func WithLearning(sink SkipSink) Option { return func(mt *Matcher) { mt.sink = sink } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(mt *Matcher) { mt.logger = l } }

// New creates a Matcher.
func New(opts Options, options ...Option) *Matcher {
	opts.defaults()
	m := &Matcher{
		opts:   opts,
		stop:   newStopSet(opts.StopWords),
		logger: slog.Default(),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Options returns the effective options.
func (m *Matcher) Options() Options { return m.opts }

// Match returns the best profile key for f gated at Threshold.
func (m *Matcher) Match(profile Profile, f dom.Field) Result {
	return m.match(profile, f, m.opts.Threshold)
}

// MatchForFill is Match gated at the looser FillThreshold.
func (m *Matcher) MatchForFill(profile Profile, f dom.Field) Result {
	return m.match(profile, f, m.opts.FillThreshold)
}

// Best returns the highest scoring key without applying any gate or
// override. Key is empty only when no key scored above zero.
func (m *Matcher) Best(profile Profile, label string) (string, float64) {
	tokens := Tokenize(label)
	best, bestScore := "", 0.0
	for _, key := range profile.Keys() {
		s := m.stop.score(tokens, Tokenize(key))
		if s > bestScore {
			best, bestScore = key, s
		}
	}
	return best, bestScore
}

// StopFiltered tokenizes label and removes stop-words.
func (m *Matcher) StopFiltered(label string) []string {
	return m.stop.filter(Tokenize(label))
}

func (m *Matcher) match(profile Profile, f dom.Field, gate float64) Result {
	label := f.LabelText()
	guess, score := m.Best(profile, label)

	res := Result{Score: score, Reason: ReasonBelow}
	switch {
	case len(profile) == 0:
		res.Reason = ReasonNoProfile
	case len(Tokenize(label)) == 0:
		res.Reason = ReasonNoTokens
	case guess != "" && score >= gate:
		res.Key, res.Reason = guess, ReasonSimilarity
	}

	if key, ok := m.mappings.Lookup(f.Host, f.Identity()); ok {
		res = Result{Key: key, Score: 1, Reason: ReasonOverride}
	}

	if m.sink != nil && res.Score < m.opts.LearnThreshold {
		m.sink.Skip(f, label, guess, score)
	}

	m.logger.Debug("matcher: field scored",
		"field", f.Identity(), "label", label, "key", res.Key,
		"score", fmt.Sprintf("%.3f", res.Score), "reason", res.Reason)
	return res
}
