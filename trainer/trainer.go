// CLAUDE:SUMMARY Learns per-site field→key override mappings from fields the filler skipped, persists them and triggers a refill.
// Package trainer turns skipped fields into override mappings.
//
// Every stop-word-filtered label token of a skipped field is compared with
// each profile key (and the key's aliases) using the matcher's similarity
// primitive. Tokens scoring above the gate vote for a key; the winner becomes
// a (site, field identity) → key override consumed by the matcher on the
// next fill.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/formpilot/matcher"
)

// ErrNoNewMappings is returned by Train when no token cleared the gate.
var ErrNoNewMappings = errors.New("trainer: no new mappings")

// MappingStore persists the override table.
type MappingStore interface {
	LoadMappings(ctx context.Context) (matcher.Mappings, error)
	SaveMappings(ctx context.Context, m matcher.Mappings) error
}

// RefillFunc re-runs the form filler after new mappings were learned.
type RefillFunc func(ctx context.Context, mappings matcher.Mappings) error

// Config configures a Trainer.
type Config struct {
	Matcher *matcher.Matcher
	Store   MappingStore
	// Gate is the exclusive minimum token score. Default 0.6.
	Gate float64
	// Aliases replaces DefaultAliases when non-nil.
	Aliases map[string][]string
	Refill  RefillFunc
	Logger  *slog.Logger
}

// Trainer derives and persists override mappings.
type Trainer struct {
	m       *matcher.Matcher
	store   MappingStore
	gate    float64
	aliases map[string][]string
	refill  RefillFunc
	logger  *slog.Logger
}

// New creates a Trainer.
func New(cfg Config) *Trainer {
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(matcher.Options{})
	}
	if cfg.Gate <= 0 {
		cfg.Gate = 0.6
	}
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	aliases := make(map[string][]string, len(cfg.Aliases))
	for k, v := range cfg.Aliases {
		aliases[strings.ToLower(k)] = v
	}
	return &Trainer{
		m:       cfg.Matcher,
		store:   cfg.Store,
		gate:    cfg.Gate,
		aliases: aliases,
		refill:  cfg.Refill,
		logger:  cfg.Logger,
	}
}

// SetRefill replaces the refill callback.
func (t *Trainer) SetRefill(fn RefillFunc) { t.refill = fn }

type vote struct {
	key   string
	score float64
}

// Suggest computes override mappings for skipped without persisting them.
// Fields without an identity cannot be addressed by an override and are
// ignored.
func (t *Trainer) Suggest(skipped []SkippedField, profile matcher.Profile) matcher.Mappings {
	// token → indexes into skipped, in first-seen token order.
	index := make(map[string][]int)
	var order []string
	for i, sf := range skipped {
		if sf.Field.Identity() == "" {
			continue
		}
		for _, tok := range t.m.StopFiltered(sf.Label) {
			if _, ok := index[tok]; !ok {
				order = append(order, tok)
			}
			index[tok] = append(index[tok], i)
		}
	}

	keys := profile.Keys()
	best := make(map[int]vote)
	for _, tok := range order {
		key, score := t.bestKey(tok, keys)
		if key == "" {
			continue
		}
		for _, i := range index[tok] {
			if cur, ok := best[i]; !ok || score > cur.score {
				best[i] = vote{key: key, score: score}
			}
		}
	}

	out := matcher.Mappings{}
	for i, v := range best {
		f := skipped[i].Field
		out.Set(f.Host, f.Identity(), v.key)
		t.logger.Debug("trainer: suggestion",
			"host", f.Host, "field", f.Identity(), "key", v.key, "score", v.score)
	}
	return out
}

// bestKey scores tok against each key string and its aliases.
func (t *Trainer) bestKey(tok string, keys []string) (string, float64) {
	best, bestScore := "", t.gate
	for _, key := range keys {
		s := matcher.Similarity(tok, strings.ToLower(key))
		for _, alias := range t.aliases[strings.ToLower(key)] {
			s = max(s, matcher.Similarity(tok, strings.ToLower(alias)))
		}
		if s > bestScore {
			best, bestScore = key, s
		}
	}
	return best, bestScore
}

// Train learns from the buffered fields. On success the mappings are merged
// into the store, the buffer is cleared and the refill callback runs. When
// nothing was learned it returns ErrNoNewMappings and leaves buf untouched.
func (t *Trainer) Train(ctx context.Context, buf *Buffer, profile matcher.Profile) (matcher.Mappings, error) {
	delta := t.Suggest(buf.Fields(), profile)
	if delta.Len() == 0 {
		t.logger.Info("trainer: no new mappings", "skipped", buf.Len())
		return delta, ErrNoNewMappings
	}

	merged, err := t.store.LoadMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("trainer: load mappings: %w", err)
	}
	if merged == nil {
		merged = matcher.Mappings{}
	}
	merged.Merge(delta)
	if err := t.store.SaveMappings(ctx, merged); err != nil {
		return nil, fmt.Errorf("trainer: save mappings: %w", err)
	}

	t.logger.Info("trainer: mappings learned", "new", delta.Len(), "total", merged.Len())
	buf.Clear()

	if t.refill != nil {
		if err := t.refill(ctx, merged); err != nil {
			t.logger.Warn("trainer: refill failed", "error", err)
		}
	}
	return delta, nil
}
