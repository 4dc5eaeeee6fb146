package dom

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var labelPolicy = bluemonday.StrictPolicy()

// CleanLabel turns label markup into plain, single-spaced text.
func CleanLabel(markup string) string {
	text := html.UnescapeString(labelPolicy.Sanitize(markup))
	return strings.Join(strings.Fields(text), " ")
}
