// Package tags defines the canonical form of image tags.
package tags

import (
	"strings"
	"unicode"
)

// Normalize returns the canonical form of a tag: lowercase, stripped of
// anything but a-z, 0-9, '-' and whitespace, trimmed, with each run of
// whitespace collapsed to a single hyphen. The result may be empty.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(tag string) string {
	tag = strings.ToLower(tag)

	var kept strings.Builder
	kept.Grow(len(tag))
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			kept.WriteRune(r)
		case unicode.IsSpace(r):
			kept.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(kept.String()), "-")
}

// NormalizeAll normalizes every tag, dropping empty results and duplicates
// while keeping first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, r := range raw {
		t := Normalize(r)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}
