package trainer

import (
	"sync"

	"github.com/hazyhaar/formpilot/dom"
)

// SkippedField is a field the filler could not confidently fill.
type SkippedField struct {
	Field dom.Field `json:"field"`
	Label string    `json:"label"`
	Guess string    `json:"guess,omitempty"`
	Score float64   `json:"score"`
}

// Buffer holds the skipped fields of one training session. It deduplicates
// on (host, identity, label) so repeated fills of the same page do not pile
// up entries. Buffer implements matcher.SkipSink.
type Buffer struct {
	mu     sync.Mutex
	fields []SkippedField
	seen   map[string]int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{seen: make(map[string]int)}
}

func bufferKey(sf SkippedField) string {
	return sf.Field.Host + "\x00" + sf.Field.Identity() + "\x00" + sf.Label
}

// Add appends sf, replacing an earlier entry for the same field.
func (b *Buffer) Add(sf SkippedField) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := bufferKey(sf)
	if i, ok := b.seen[k]; ok {
		b.fields[i] = sf
		return
	}
	b.seen[k] = len(b.fields)
	b.fields = append(b.fields, sf)
}

// AddAll appends every entry of sfs.
func (b *Buffer) AddAll(sfs []SkippedField) {
	for _, sf := range sfs {
		b.Add(sf)
	}
}

// Skip implements matcher.SkipSink.
func (b *Buffer) Skip(f dom.Field, label, guess string, score float64) {
	b.Add(SkippedField{Field: f, Label: label, Guess: guess, Score: score})
}

// Fields returns a copy of the buffered entries.
func (b *Buffer) Fields() []SkippedField {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SkippedField, len(b.fields))
	copy(out, b.fields)
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fields)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fields = nil
	b.seen = make(map[string]int)
}
