package dom

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		tag, typ string
		want     Kind
	}{
		{"input", "", TextLike},
		{"input", "email", TextLike},
		{"INPUT", "Checkbox", Checkbox},
		{"input", "radio", Radio},
		{"select", "", Selectable},
		{"textarea", "", TextLike},
	}
	for _, tt := range tests {
		if got := Classify(tt.tag, tt.typ); got != tt.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tt.tag, tt.typ, got, tt.want)
		}
	}
}

func TestIsDataControl(t *testing.T) {
	for _, typ := range []string{"button", "submit", "reset", "hidden"} {
		if IsDataControl("input", typ) {
			t.Errorf("input[type=%s] should not be a data control", typ)
		}
	}
	for _, tag := range []string{"input", "select", "textarea"} {
		if !IsDataControl(tag, "") {
			t.Errorf("%s should be a data control", tag)
		}
	}
	if IsDataControl("button", "") {
		t.Error("button element should not be a data control")
	}
}

func TestField_IdentityAndHasValue(t *testing.T) {
	f := Field{Tag: "input", ID: "fn"}
	if f.Identity() != "fn" {
		t.Fatalf("Identity = %q, want fn", f.Identity())
	}
	f.Name = "first"
	if f.Identity() != "first" {
		t.Fatalf("Identity = %q, want name to win", f.Identity())
	}
	if f.HasValue() {
		t.Fatal("empty text field reported a value")
	}
	cb := Field{Tag: "input", Type: "checkbox", Value: "on"}
	if cb.HasValue() {
		t.Fatal("unchecked checkbox reported a value")
	}
	cb.Checked = true
	if !cb.HasValue() {
		t.Fatal("checked checkbox reported no value")
	}
}

func TestSelector(t *testing.T) {
	tests := []struct {
		name string
		path []PathNode
		want string
	}{
		{"id wins", []PathNode{{Tag: "input", ID: "note", Classes: []string{"x"}}}, "#note"},
		{
			"class chain",
			[]PathNode{
				{Tag: "button", Classes: []string{"btn", "active"}},
				{Tag: "div", Classes: []string{"actions"}},
				{Tag: "form"},
				{Tag: "body"},
				{Tag: "html"},
			},
			"body > form > div.actions > button.btn",
		},
		{
			"ancestor id anchors",
			[]PathNode{{Tag: "span"}, {Tag: "div", ID: "main"}, {Tag: "body"}},
			"#main > span",
		},
		{
			"bounded depth",
			[]PathNode{{Tag: "a"}, {Tag: "b"}, {Tag: "c"}, {Tag: "d"}, {Tag: "e"}, {Tag: "f"}, {Tag: "g"}},
			"e > d > c > b > a",
		},
		{"leading digit escaped", []PathNode{{Tag: "input", ID: "1x"}}, `#\31 x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Selector(tt.path); got != tt.want {
				t.Errorf("Selector = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStableClasses(t *testing.T) {
	got := StableClasses([]string{"field", "css-1x2y3z", "is-active", "focused", "col-6", "x4521"})
	want := []string{"field", "col-6"}
	if len(got) != len(want) {
		t.Fatalf("StableClasses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("StableClasses = %v, want %v", got, want)
		}
	}
}

func TestCleanLabel(t *testing.T) {
	got := CleanLabel("  First <b>Name</b>\n <span class=req>*</span> &amp; more ")
	if got != "First Name * & more" {
		t.Fatalf("CleanLabel = %q", got)
	}
}
