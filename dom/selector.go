package dom

import (
	"regexp"
	"strings"
)

// MaxSelectorDepth bounds the ancestor chain of a derived selector.
const MaxSelectorDepth = 5

// PathNode is one element on the path from a target up to the root,
// as seen by selector derivation.
type PathNode struct {
	Tag     string
	ID      string
	Classes []string
}

var unstableClass = regexp.MustCompile(`\d{3,}|^(css|sc|jsx|emotion|svelte)-|^(is-|has-)?(active|focus|focused|hover|selected|open|visible|hidden|disabled|checked)$`)

// StableClasses drops state and generated classes that will not survive a
// reload.
func StableClasses(classes []string) []string {
	var out []string
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c == "" || unstableClass.MatchString(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Selector derives a CSS selector from path (target first, then ancestors).
// An element id wins outright; otherwise up to MaxSelectorDepth levels of
// tag.stableClass are chained with the child combinator. An ancestor with an
// id anchors and ends the chain.
func Selector(path []PathNode) string {
	if len(path) == 0 {
		return ""
	}
	if path[0].ID != "" {
		return "#" + cssEscape(path[0].ID)
	}

	var parts []string
	for i, n := range path {
		if i >= MaxSelectorDepth {
			break
		}
		if n.ID != "" && i > 0 {
			parts = append(parts, "#"+cssEscape(n.ID))
			break
		}
		tag := strings.ToLower(n.Tag)
		if tag == "" || tag == "html" {
			break
		}
		seg := tag
		for _, c := range StableClasses(n.Classes) {
			seg += "." + cssEscape(c)
		}
		parts = append(parts, seg)
		if tag == "body" {
			break
		}
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func cssEscape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteString(`\3`)
				b.WriteRune(r)
				b.WriteByte(' ')
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
