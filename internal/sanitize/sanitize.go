// Package sanitize strips markup from user supplied text before it is stored.
// Stored text ends up inside notification emails, so the result never contains a tag.
// Anything the HTML tokenizer reads as a tag is dropped with its brackets, including
// prose such as "a<b and c>d"; a lone "<" or ">" is kept.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

const maxPasses = 8

// Text removes all tags, trims surrounding whitespace and returns plain text. Escaped
// markup such as "&lt;b&gt;" is unescaped and stripped as well.
func Text(s string) string {
	if s == "" {
		return ""
	}
	out := s
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// still changing: keep the escaped form, which is tag-free
	return strings.TrimSpace(strict.Sanitize(out))
}
