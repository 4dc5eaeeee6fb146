package matcher

import (
	"reflect"
	"testing"

	"github.com/hazyhaar/formpilot/dom"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"First Name", []string{"first", "name"}},
		{"email_addr", []string{"email", "addr"}},
		{"billingZipCode", []string{"billing", "zip", "code"}},
		{"  Mobile   Number* ", []string{"mobile", "number"}},
		{"", nil},
		{"---", nil},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	words := []string{"a", "first", "firstname", "fn", "email", "e-mail", "zip", "zipcode", "phone", "x", "ü", "number"}
	for _, a := range words {
		if got := Similarity(a, a); got != 1 {
			t.Errorf("Similarity(%q, %q) = %v, want 1", a, a, got)
		}
		for _, b := range words {
			s := Similarity(a, b)
			if s < 0 || s > 1 {
				t.Errorf("Similarity(%q, %q) = %v out of [0,1]", a, b, s)
			}
			if s != Similarity(b, a) {
				t.Errorf("Similarity not symmetric for %q/%q", a, b)
			}
		}
	}
	if got := Similarity("zip", "zipcode"); got != 3.0/7.0 {
		t.Errorf("Similarity(zip, zipcode) = %v, want 3/7", got)
	}
	if got := Similarity("", "abc"); got != 0 {
		t.Errorf("Similarity(\"\", abc) = %v, want 0", got)
	}
}

func TestMatch_AlignedLabelMatches(t *testing.T) {
	profile := Profile{
		"first name":   "Jane",
		"last name":    "Doe",
		"email":        "j@x.com",
		"company":      "Acme",
		"postal code":  "75001",
		"phone number": "555",
	}
	m := New(Options{})
	for _, key := range profile.Keys() {
		f := dom.Field{Tag: "input", Label: key, Name: key}
		res := m.Match(profile, f)
		if res.Key != key {
			t.Errorf("label %q: matched %q (score %.2f), want %q", key, res.Key, res.Score, key)
		}
		if res.Score < 0.6 {
			t.Errorf("label %q: score %.2f below gate", key, res.Score)
		}
	}
}

func TestMatch_LabelAndNameScenarios(t *testing.T) {
	profile := Profile{"first name": "Jane", "email": "j@x.com"}
	m := New(Options{})

	fn := dom.Field{Tag: "input", ID: "fn", Label: "First Name"}
	if res := m.Match(profile, fn); res.Key != "first name" {
		t.Fatalf("fn matched %+v, want first name", res)
	}

	addr := dom.Field{Tag: "input", Name: "email_addr"}
	if res := m.Match(profile, addr); res.Matched() {
		t.Fatalf("email_addr cleared the strict gate: %+v", res)
	}
	res := m.MatchForFill(profile, addr)
	if res.Key != "email" || res.Score != 0.5 {
		t.Fatalf("email_addr for fill = %+v, want email at 0.5", res)
	}
}

func TestMatch_StopWordsNeedExactHit(t *testing.T) {
	m := New(Options{})
	// "state" would earn 5/9 prefix credit against "statement" without the
	// stop-word rule.
	profile := Profile{"statement": "x"}
	res := m.MatchForFill(profile, dom.Field{Tag: "input", Label: "State"})
	if res.Matched() || res.Score != 0 {
		t.Fatalf("stop-word earned partial credit: %+v", res)
	}
}

func TestMatch_OverrideAlwaysWins(t *testing.T) {
	profile := Profile{"first name": "Jane", "email": "j@x.com"}
	mappings := Mappings{}
	mappings.Set("example.com", "qq9", "email")
	m := New(Options{}, WithMappings(mappings))

	f := dom.Field{Host: "example.com", Tag: "input", Name: "qq9", Label: "Zebra"}
	if _, s := m.Best(profile, f.LabelText()); s != 0 {
		t.Fatalf("precondition: label should score 0, got %v", s)
	}
	res := m.Match(profile, f)
	if res.Key != "email" || res.Score != 1 || res.Reason != ReasonOverride {
		t.Fatalf("override lost: %+v", res)
	}

	other := f
	other.Host = "other.org"
	if res := m.Match(profile, other); res.Matched() {
		t.Fatalf("override leaked across contexts: %+v", res)
	}
}

func TestMatch_EmptyLabel(t *testing.T) {
	m := New(Options{})
	res := m.Match(Profile{"email": "x"}, dom.Field{Tag: "input"})
	if res.Matched() || res.Score != 0 || res.Reason != ReasonNoTokens {
		t.Fatalf("empty field = %+v", res)
	}
	res = m.Match(Profile{}, dom.Field{Tag: "input", Name: "email"})
	if res.Matched() || res.Reason != ReasonNoProfile {
		t.Fatalf("empty profile = %+v", res)
	}
}

func TestMatch_TieBreakIsStable(t *testing.T) {
	profile := Profile{"ab": "lower", "Ab": "upper"}
	m := New(Options{})
	for i := 0; i < 20; i++ {
		res := m.Match(profile, dom.Field{Tag: "input", Name: "ab"})
		if res.Key != "Ab" {
			t.Fatalf("run %d: tie resolved to %q, want Ab", i, res.Key)
		}
	}
}

type sinkRecorder struct {
	labels []string
	guess  []string
}

func (s *sinkRecorder) Skip(f dom.Field, label, guess string, score float64) {
	s.labels = append(s.labels, label)
	s.guess = append(s.guess, guess)
}

func TestMatch_LearningModeCapturesNearMisses(t *testing.T) {
	sink := &sinkRecorder{}
	profile := Profile{"first name": "Jane", "email": "j@x.com"}
	m := New(Options{}, WithLearning(sink))

	m.Match(profile, dom.Field{Tag: "input", Name: "first_name", Label: "First Name"}) // 1.0
	m.Match(profile, dom.Field{Tag: "input", ID: "fn", Label: "First Name"})           // 0.73
	m.Match(profile, dom.Field{Tag: "input", Name: "email_addr"})                      // 0.5

	if len(sink.labels) != 2 {
		t.Fatalf("captured %v, want the two sub-0.8 fields", sink.labels)
	}
	if sink.guess[0] != "first name" || sink.guess[1] != "email" {
		t.Fatalf("guesses = %v", sink.guess)
	}
}

func TestMappings_Merge(t *testing.T) {
	m := Mappings{}
	m.Set("a.com", "f1", "email")
	m.Set("b.com", "f2", "phone")

	delta := Mappings{}
	delta.Set("a.com", "f3", "zip")
	delta.Set("a.com", "f1", "mail")
	m.Merge(delta)

	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	if k, _ := m.Lookup("b.com", "f2"); k != "phone" {
		t.Fatalf("untouched entry changed: %q", k)
	}
	if k, _ := m.Lookup("a.com", "f1"); k != "mail" {
		t.Fatalf("merged entry = %q, want mail", k)
	}
	if _, ok := m.Lookup("a.com", ""); ok {
		t.Fatal("empty identity must never match")
	}
}
