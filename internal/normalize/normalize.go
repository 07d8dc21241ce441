// Package normalize canonicalises user-supplied text before it is stored or
// used as a lookup key.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Text returns s in Unicode NFC with surrounding whitespace trimmed and
// internal whitespace runs folded to a single space. "Martin  Fowler" and
// "Martin Fowler" therefore name the same author.
func Text(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Genres normalises every genre tag and drops the ones that become empty.
// Order and duplicates are preserved.
func Genres(genres []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		if g = Text(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
