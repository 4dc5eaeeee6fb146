package htmldoc

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// compound is one "tag#id.class[attr=val]" unit of a selector.
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   [][2]string // key, value ("" = presence only)
}

// step is a compound plus the combinator linking it to the previous step.
type step struct {
	child bool // ">" rather than descendant
	sel   compound
}

// parseSelector parses the subset of CSS formpilot derives and replays:
// tag, #id, .class, [attr], [attr=val], descendant and ">" combinators,
// with backslash escapes.
func parseSelector(s string) ([]step, error) {
	var steps []step
	child := false
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '>':
			if len(steps) == 0 {
				return nil, fmt.Errorf("htmldoc: selector %q starts with a combinator", s)
			}
			child = true
			i++
		default:
			comp, n, err := parseCompound(s[i:])
			if err != nil {
				return nil, fmt.Errorf("htmldoc: selector %q: %w", s, err)
			}
			if n == 0 {
				return nil, fmt.Errorf("htmldoc: selector %q: unexpected %q at %d", s, c, i)
			}
			steps = append(steps, step{child: child, sel: comp})
			child = false
			i += n
		}
	}
	if len(steps) == 0 || child {
		return nil, fmt.Errorf("htmldoc: empty or dangling selector %q", s)
	}
	return steps, nil
}

func parseCompound(s string) (compound, int, error) {
	var c compound
	i := 0
	ident := func() string {
		var b strings.Builder
		for i < len(s) {
			ch := s[i]
			if ch == '\\' && i+1 < len(s) {
				r, n := unescape(s[i+1:])
				b.WriteString(r)
				i += 1 + n
				continue
			}
			if ch == '.' || ch == '#' || ch == '[' || ch == ' ' || ch == '>' || ch == '\t' || ch == '\n' {
				break
			}
			b.WriteByte(ch)
			i++
		}
		return b.String()
	}

	c.tag = strings.ToLower(ident())
	if c.tag == "*" {
		c.tag = ""
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			c.id = ident()
		case '.':
			i++
			c.classes = append(c.classes, ident())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, 0, fmt.Errorf("unterminated attribute")
			}
			body := s[i+1 : i+end]
			i += end + 1
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				c.attrs = append(c.attrs, [2]string{strings.TrimSpace(body[:eq]), strings.Trim(strings.TrimSpace(body[eq+1:]), `"'`)})
			} else {
				c.attrs = append(c.attrs, [2]string{strings.TrimSpace(body), ""})
			}
		default:
			return c, i, nil
		}
	}
	return c, i, nil
}

// unescape decodes one CSS escape (after the backslash): up to six hex
// digits plus an optional trailing space, or a literal character.
func unescape(s string) (string, int) {
	n := 0
	for n < len(s) && n < 6 && strings.IndexByte("0123456789abcdefABCDEF", s[n]) >= 0 {
		n++
	}
	if n == 0 {
		return s[:1], 1
	}
	cp, err := strconv.ParseUint(s[:n], 16, 32)
	if err != nil {
		return s[:n], n
	}
	if n < len(s) && s[n] == ' ' {
		n++
	}
	return string(rune(cp)), n
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !hasAttr(n, a[0]) {
			return false
		}
		if a[1] != "" && attr(n, a[0]) != a[1] {
			return false
		}
	}
	return true
}

// matchSteps checks n against steps right to left.
func matchSteps(n *html.Node, steps []step) bool {
	last := len(steps) - 1
	if !steps[last].sel.matches(n) {
		return false
	}
	if last == 0 {
		return true
	}
	rest := steps[:last]
	if steps[last].child {
		p := n.Parent
		return p != nil && matchSteps(p, rest)
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if matchSteps(p, rest) {
			return true
		}
	}
	return false
}

// querySelector returns the first element in document order matching sel.
func querySelector(root *html.Node, sel string) (*html.Node, error) {
	steps, err := parseSelector(sel)
	if err != nil {
		return nil, err
	}
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if matchSteps(n, steps) {
			found = n
			return false
		}
		return true
	})
	return found, nil
}

// walk visits element nodes depth-first in document order until fn
// returns false.
func walk(root *html.Node, fn func(*html.Node) bool) bool {
	if root.Type == html.ElementNode && !fn(root) {
		return false
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
