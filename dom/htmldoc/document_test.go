package htmldoc

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/formpilot/dom"
)

const signup = `<html><body>
<form id="f" action="/signup">
  <label for="fn">First Name</label><input id="fn">
  <div><label>Last <b>Name</b></label><input name="ln" value="Doe"></div>
  <label>Country <select name="country"><option>France</option><option value="de">Germany</option></select></label>
  <textarea name="bio">hello</textarea>
  <input type="checkbox" name="news">
  <input type="radio" name="plan" value="free" checked>
  <input type="radio" name="plan" value="pro">
  <input type="submit" value="Go">
</form>
</body></html>`

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	d, err := ParseString(src, "https://shop.example.com/signup")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func fieldBy(t *testing.T, fields []dom.Field, identity string) dom.Field {
	t.Helper()
	for _, f := range fields {
		if f.Identity() == identity {
			return f
		}
	}
	t.Fatalf("no field %q", identity)
	return dom.Field{}
}

func TestFields_SnapshotAndLabels(t *testing.T) {
	d := mustParse(t, signup)
	if d.Host() != "shop.example.com" {
		t.Fatalf("host = %q", d.Host())
	}
	fields, err := d.Fields(context.Background())
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if len(fields) != 8 {
		t.Fatalf("got %d fields, want 8", len(fields))
	}

	tests := []struct {
		identity, label, value, typ string
	}{
		{"fn", "First Name", "", "text"},
		{"ln", "Last Name", "Doe", "text"},
		{"country", "Country", "France", ""},
		{"bio", "", "hello", ""},
		{"news", "", "on", "checkbox"},
	}
	for _, tt := range tests {
		f := fieldBy(t, fields, tt.identity)
		if f.Label != tt.label || f.Value != tt.value || f.Type != tt.typ {
			t.Errorf("%s: label=%q value=%q type=%q, want %q %q %q",
				tt.identity, f.Label, f.Value, f.Type, tt.label, tt.value, tt.typ)
		}
		if f.Host != "shop.example.com" || f.Ref == "" {
			t.Errorf("%s: host=%q ref=%q", tt.identity, f.Host, f.Ref)
		}
	}
	if !fields[5].Checked || fields[6].Checked {
		t.Errorf("radio checked state = %v/%v", fields[5].Checked, fields[6].Checked)
	}
}

func TestLabel_ForOtherFieldIsIgnored(t *testing.T) {
	d := mustParse(t, `<div><label for="other">Email</label><input name="zip"></div>`)
	fields, _ := d.Fields(context.Background())
	if fields[0].Label != "" {
		t.Fatalf("label = %q, want empty", fields[0].Label)
	}
}

func TestLabel_AncestorWalk(t *testing.T) {
	tests := []struct {
		name, src, identity, want string
	}{
		{"form sibling", `<form><label>Email</label><div><input name="x"></div></form>`, "x", "Email"},
		{"deep", `<div><div><div><div><label>Phone</label><span><span><span><input name="p"></span></span></span></div></div></div></div>`, "p", "Phone"},
		{"first of pair", `<form><label>A</label><div><input name="a"></div><label>B</label><div><input name="b"></div></form>`, "a", "A"},
		{"second of pair", `<form><label>A</label><div><input name="a"></div><label>B</label><div><input name="b"></div></form>`, "b", "B"},
		{"label after control", `<div><input type="checkbox" name="agree"><label>I agree</label></div>`, "agree", "I agree"},
		{"hidden input between", `<form><label>Email</label><input type="hidden" name="csrf"><input name="e"></form>`, "e", "Email"},
		{"body not searched", `<label>Orphan</label><input name="o">`, "o", ""},
		{"stops at form", `<div><label>Outside</label><form><input name="in"></form></div>`, "in", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.src)
			fields, err := d.Fields(context.Background())
			if err != nil {
				t.Fatalf("fields: %v", err)
			}
			if got := fieldBy(t, fields, tt.identity).Label; got != tt.want {
				t.Errorf("label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetValue_SelectTextareaInput(t *testing.T) {
	d := mustParse(t, signup)
	ctx := context.Background()
	fields, _ := d.Fields(ctx)

	if err := d.SetValue(ctx, fieldBy(t, fields, "country"), "de"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := d.SetValue(ctx, fieldBy(t, fields, "bio"), "bye"); err != nil {
		t.Fatalf("textarea: %v", err)
	}
	if err := d.SetValue(ctx, fieldBy(t, fields, "fn"), "Jane"); err != nil {
		t.Fatalf("input: %v", err)
	}
	if err := d.SetValue(ctx, fieldBy(t, fields, "country"), "Spain"); err == nil {
		t.Fatal("expected error for unknown option")
	}

	for sel, want := range map[string]string{
		"select[name=country]": "de",
		"textarea":             "bye",
		"#fn":                  "Jane",
	} {
		got, _, err := d.Value(sel)
		if err != nil || got != want {
			t.Errorf("%s = %q (%v), want %q", sel, got, err, want)
		}
	}
}

func TestSetChecked_RadioGroupIsExclusive(t *testing.T) {
	d := mustParse(t, signup)
	ctx := context.Background()
	fields, _ := d.Fields(ctx)

	if err := d.SetChecked(ctx, fields[6], true); err != nil {
		t.Fatalf("check: %v", err)
	}
	_, free, _ := d.Value(`input[value=free]`)
	_, pro, _ := d.Value(`input[value=pro]`)
	if free || !pro {
		t.Fatalf("free=%v pro=%v, want false/true", free, pro)
	}
}

func TestDispatchAndHighlight(t *testing.T) {
	d := mustParse(t, signup)
	ctx := context.Background()
	fields, _ := d.Fields(ctx)
	fn := fieldBy(t, fields, "fn")

	if err := d.Dispatch(ctx, fn, "input", "change"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	ev := d.Events()
	if len(ev) != 2 || ev[0].Type != "input" || ev[1].Type != "change" || ev[0].Ref != fn.Ref {
		t.Fatalf("events = %+v", ev)
	}

	if err := d.Highlight(ctx, fn, 20*time.Millisecond); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	var buf bytes.Buffer
	d.Render(&buf)
	if !strings.Contains(buf.String(), HighlightAttr) {
		t.Fatal("highlight attribute missing")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		buf.Reset()
		d.Render(&buf)
		if !strings.Contains(buf.String(), HighlightAttr) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("highlight was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.Dispatch(ctx, dom.Field{Ref: "nope"}, "input"); err == nil {
		t.Fatal("expected error for unknown ref")
	}
}

func TestHighlight_RepeatKeepsLatest(t *testing.T) {
	d := mustParse(t, signup)
	ctx := context.Background()
	fields, _ := d.Fields(ctx)
	fn := fieldBy(t, fields, "fn")

	if err := d.Highlight(ctx, fn, 20*time.Millisecond); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	if err := d.Highlight(ctx, fn, time.Second); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	var buf bytes.Buffer
	d.Render(&buf)
	if !strings.Contains(buf.String(), HighlightAttr) {
		t.Fatal("first timer cleared the second highlight")
	}
}

func TestTarget_QueryAndElementAt(t *testing.T) {
	d := mustParse(t, signup)
	ctx := context.Background()

	el, err := d.Query(ctx, "#missing")
	if err != nil || el != nil {
		t.Fatalf("missing selector = %v, %v; want nil, nil", el, err)
	}

	if err := d.SetLayout("form", dom.Rect{X: 0, Y: 0, Width: 500, Height: 500}); err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := d.SetLayout("input[name=news]", dom.Rect{X: 10, Y: 100, Width: 20, Height: 20}); err != nil {
		t.Fatalf("layout: %v", err)
	}

	hit, err := d.ElementAt(ctx, dom.Point{X: 15, Y: 110})
	if err != nil || hit == nil {
		t.Fatalf("element at: %v, %v", hit, err)
	}
	if err := hit.Mouse(ctx, "click", dom.Point{X: 15, Y: 110}, 0, dom.Modifiers{}); err != nil {
		t.Fatalf("click: %v", err)
	}
	if _, on, _ := d.Value("input[name=news]"); !on {
		t.Fatal("click did not toggle the checkbox")
	}

	if none, _ := d.ElementAt(ctx, dom.Point{X: 900, Y: 900}); none != nil {
		t.Fatal("hit outside every box")
	}

	in, _ := d.Query(ctx, "#fn")
	if err := in.Input(ctx, "Jane", nil); err != nil {
		t.Fatalf("input: %v", err)
	}
	if err := in.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ev := d.Events()
	if last := ev[len(ev)-1]; last.Type != "submit" {
		t.Fatalf("last event = %+v, want submit", last)
	}

	if _, err := d.Query(ctx, "a >"); err == nil {
		t.Fatal("expected selector parse error")
	}
}

func TestFetch_ReissuesRequest(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b := new(bytes.Buffer)
		_, _ = b.ReadFrom(r.Body)
		body = b.String()
	}))
	defer srv.Close()

	d, err := ParseString(`<p>x</p>`, srv.URL+"/page")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = d.Fetch(context.Background(), dom.Request{
		Kind: "fetch", Method: "POST", URL: "/api/save",
		Headers: map[string]string{"X-Token": "t"}, Body: `{"a":1}`,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.URL.Path != "/api/save" || got.Method != "POST" || got.Header.Get("X-Token") != "t" || body != `{"a":1}` {
		t.Fatalf("request = %s %s %v %q", got.Method, got.URL.Path, got.Header, body)
	}
}
