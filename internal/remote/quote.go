package remote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quote returns s quoted for use as a single bash word. Strings that need
// no quoting are returned unchanged.
func Quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// NUL bytes cannot be represented in a shell word.
		q, _ = syntax.Quote(strings.ReplaceAll(s, "\x00", ""), syntax.LangBash)
	}
	return q
}
