// Package locate finds cited source text inside a rendered document: the page
// it sits on and the run of positioned text fragments that hold it.
package locate

import (
	"strings"

	"paper-citations-rag/internal/models"
	"paper-citations-rag/internal/textnorm"
)

const (
	// prefixRatio is the share of the cleaned citation tried when the full text is absent
	prefixRatio = 0.6
	// minPrefixRunes is the shortest prefix worth searching for
	minPrefixRunes = 20
)

// FindSpan returns the inclusive range of fragments that holds sourceText.
// Fragments are joined in reading order with one space between them; empty
// fragments are skipped but keep their index. If the whole citation is
// absent, a 60% prefix of at least 20 characters is tried and the match is
// flagged Partial.
func FindSpan(fragments []models.Fragment, sourceText string) (models.SpanMatch, bool) {
	joined, owner := joinFragments(fragments)
	if len(owner) == 0 {
		return models.SpanMatch{}, false
	}

	page := textnorm.Normalize(joined)
	start, end, partial, ok := search(page.Text, textnorm.Normalize(sourceText).Text)
	if !ok {
		return models.SpanMatch{}, false
	}

	rawStart, rawEnd, ok := page.RawSpan(start, end)
	if !ok {
		return models.SpanMatch{}, false
	}

	return models.SpanMatch{
		StartFragment: owner[rawStart],
		EndFragment:   owner[rawEnd-1],
		Partial:       partial,
	}, true
}

// joinFragments concatenates the lightly cleaned fragment texts and records
// the owning fragment index of every byte. A separating space belongs to the
// fragment that follows it.
func joinFragments(fragments []models.Fragment) (string, []int) {
	var b strings.Builder
	var owner []int

	for i, f := range fragments {
		text := textnorm.LightClean(f.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
			owner = append(owner, i)
		}
		b.WriteString(text)
		for range len(text) {
			owner = append(owner, i)
		}
	}

	return b.String(), owner
}

// search looks for needle in haystack, falling back to its prefix. Offsets are
// byte offsets into haystack.
func search(haystack, needle string) (start, end int, partial, ok bool) {
	if needle == "" {
		return 0, 0, false, false
	}
	if i := strings.Index(haystack, needle); i >= 0 {
		return i, i + len(needle), false, true
	}

	prefix, ok := matchPrefix(needle)
	if !ok {
		return 0, 0, false, false
	}
	if i := strings.Index(haystack, prefix); i >= 0 {
		return i, i + len(prefix), true, true
	}
	return 0, 0, false, false
}

// matchPrefix returns the leading 60% of needle, counted in characters, when
// that is at least minPrefixRunes long.
func matchPrefix(needle string) (string, bool) {
	runes := []rune(needle)
	n := int(float64(len(runes)) * prefixRatio)
	if n < minPrefixRunes {
		return "", false
	}
	return string(runes[:n]), true
}
