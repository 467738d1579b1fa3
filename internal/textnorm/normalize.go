// Package textnorm canonicalises text for citation matching while keeping a
// map from every surviving character back to its offset in the raw input.
package textnorm

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Position pairs the byte offset of a cleaned character with the byte offset
// of the raw character it came from.
type Position struct {
	Cleaned int
	Raw     int
}

// PositionMap holds one Position per cleaned character, ordered by Cleaned.
// Raw offsets are non-decreasing.
type PositionMap []Position

// RawOffset returns the raw offset of the cleaned character starting at cleaned
func (m PositionMap) RawOffset(cleaned int) (int, bool) {
	i := sort.Search(len(m), func(i int) bool { return m[i].Cleaned >= cleaned })
	if i < len(m) && m[i].Cleaned == cleaned {
		return m[i].Raw, true
	}
	return 0, false
}

// lastBefore returns the index of the last entry whose character starts before end
func (m PositionMap) lastBefore(end int) int {
	return sort.Search(len(m), func(i int) bool { return m[i].Cleaned >= end }) - 1
}

// Normalized is the result of Normalize
type Normalized struct {
	Raw  string
	Text string
	Map  PositionMap
}

// RawLast returns the raw offset of the last cleaned character that starts
// before the cleaned offset end.
func (n Normalized) RawLast(end int) (int, bool) {
	i := n.Map.lastBefore(end)
	if i < 0 {
		return 0, false
	}
	return n.Map[i].Raw, true
}

// RawSpan maps the cleaned byte range [start, end) to the raw byte range that
// covers the same characters.
func (n Normalized) RawSpan(start, end int) (int, int, bool) {
	if start < 0 || end <= start || end > len(n.Text) {
		return 0, 0, false
	}
	rawStart, ok := n.Map.RawOffset(start)
	if !ok {
		return 0, 0, false
	}
	last, ok := n.RawLast(end)
	if !ok {
		return 0, 0, false
	}
	_, width := utf8.DecodeRuneInString(n.Raw[last:])
	return rawStart, last + width, true
}

// char is one surviving rune and the raw offset it came from
type char struct {
	r   rune
	raw int
}

type pass func([]char) []char

// passes run in this order; each consumes the previous pass's output
var passes = []pass{
	dropInvisible,
	dropBracketRefs,
	dropLineHyphens,
	straightenQuotes,
	collapseSpace,
}

// Normalize canonicalises raw for substring matching. The cleaned text is
// lower-cased, and every character in it maps back to exactly one raw character.
func Normalize(raw string) Normalized {
	chars := decode(raw)
	for _, p := range passes {
		chars = p(chars)
	}

	var b strings.Builder
	b.Grow(len(chars))
	m := make(PositionMap, 0, len(chars))
	for _, c := range chars {
		m = append(m, Position{Cleaned: b.Len(), Raw: c.raw})
		b.WriteRune(unicode.ToLower(c.r))
	}

	return Normalized{Raw: raw, Text: b.String(), Map: m}
}

// LightClean straightens quotes, removes invisible characters and trims. It
// leaves brackets and hyphens alone, since those may be split across fragments.
func LightClean(s string) string {
	chars := straightenQuotes(dropInvisible(decode(s)))
	var b strings.Builder
	b.Grow(len(chars))
	for _, c := range chars {
		b.WriteRune(c.r)
	}
	return strings.TrimSpace(b.String())
}

func decode(s string) []char {
	out := make([]char, 0, len(s))
	for i, r := range s {
		out = append(out, char{r: r, raw: i})
	}
	return out
}

func isInvisible(r rune) bool {
	switch r {
	case '\u00AD', '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	return false
}

func dropInvisible(in []char) []char {
	out := make([]char, 0, len(in))
	for _, c := range in {
		if !isInvisible(c.r) {
			out = append(out, c)
		}
	}
	return out
}

// isRefChar reports whether r may appear inside a numeric reference marker such as [3], [1, 4] or [2–5]
func isRefChar(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsSpace(r) || r == ',' || r == ';' || r == '-' || r == '–'
}

func dropBracketRefs(in []char) []char {
	out := make([]char, 0, len(in))
	for i := 0; i < len(in); {
		if in[i].r != '[' {
			out = append(out, in[i])
			i++
			continue
		}
		j := i + 1
		for j < len(in) && isRefChar(in[j].r) {
			j++
		}
		if j < len(in) && in[j].r == ']' {
			i = j + 1
			continue
		}
		// no '[' in in[i+1:j], so none of it can open another marker
		out = append(out, in[i:j]...)
		i = j
	}
	return out
}

func dropLineHyphens(in []char) []char {
	out := make([]char, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i].r == '-' && i+1 < len(in) && unicode.IsSpace(in[i+1].r) {
			for i+1 < len(in) && unicode.IsSpace(in[i+1].r) {
				i++
			}
			continue
		}
		out = append(out, in[i])
	}
	return out
}

func straightQuote(r rune) rune {
	switch r {
	case '“', '”', '„', '‟', '″':
		return '"'
	case '‘', '’', '‚', '‛', '′':
		return '\''
	}
	return r
}

func straightenQuotes(in []char) []char {
	out := make([]char, len(in))
	for i, c := range in {
		out[i] = char{r: straightQuote(c.r), raw: c.raw}
	}
	return out
}

// collapseSpace turns each whitespace run into one space mapped to the run's
// first character, and drops leading and trailing runs.
func collapseSpace(in []char) []char {
	out := make([]char, 0, len(in))
	pending := -1
	for i, c := range in {
		if unicode.IsSpace(c.r) {
			if pending < 0 {
				pending = i
			}
			continue
		}
		if pending >= 0 && len(out) > 0 {
			out = append(out, char{r: ' ', raw: in[pending].raw})
		}
		pending = -1
		out = append(out, c)
	}
	return out
}
