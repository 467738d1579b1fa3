package citation

import (
	"strconv"
	"strings"

	"paper-citations-rag/internal/models"
)

// Grammar names the tag grammar a citation list was parsed with
type Grammar string

const (
	// GrammarNone means no citation tag was found
	GrammarNone Grammar = "none"
	// GrammarClosed is <CIT chunk_id='N' sentences='X-Y'>snippet</CIT>
	GrammarClosed Grammar = "closed"
	// GrammarMarker is a bare <CIT chunk_id='N' sentences='X-Y'> used as an inline mark
	GrammarMarker Grammar = "marker"
)

const (
	openTagPrefix = "<CIT"
	closeTag      = "</CIT>"
)

type tagKind int

const (
	tagOpen tagKind = iota
	tagClose
)

// tag is one lexed citation tag; start and end are byte offsets into the raw answer
type tag struct {
	kind          tagKind
	start, end    int
	sourceIndex   int
	sentenceRange string
}

// Extraction is the answer text with tags removed plus the citations found in it
type Extraction struct {
	Answer    string
	Citations []models.RawCitation
	Grammar   Grammar
}

// Extract parses the model answer. The closed-tag grammar is tried first; the
// marker grammar only runs when it found nothing. With no tags at all the raw
// text is returned unchanged.
func Extract(raw string) Extraction {
	tags := scanTags(raw)

	if answer, cites := parseClosed(raw, tags); len(cites) > 0 {
		return Extraction{Answer: answer, Citations: cites, Grammar: GrammarClosed}
	}
	if answer, cites := parseMarkers(raw, tags); len(cites) > 0 {
		return Extraction{Answer: answer, Citations: cites, Grammar: GrammarMarker}
	}

	return Extraction{Answer: raw, Citations: []models.RawCitation{}, Grammar: GrammarNone}
}

// parseClosed pairs each open tag with the first close tag after it. Anything
// in between, other open tags included, is snippet text.
func parseClosed(raw string, tags []tag) (string, []models.RawCitation) {
	var b strings.Builder
	var cites []models.RawCitation
	last := 0

	for i := 0; i < len(tags); i++ {
		open := tags[i]
		if open.kind != tagOpen {
			continue
		}
		k := i + 1
		for k < len(tags) && tags[k].kind != tagClose {
			k++
		}
		if k == len(tags) {
			break
		}
		closing := tags[k]

		b.WriteString(raw[last:open.start])
		snippet := raw[open.end:closing.start]
		start := b.Len()
		b.WriteString(snippet)

		cites = append(cites, models.RawCitation{
			SourceIndex:   open.sourceIndex,
			SentenceRange: open.sentenceRange,
			Snippet:       snippet,
			SnippetStart:  start,
			SnippetEnd:    b.Len(),
		})
		last = closing.end
		i = k
	}

	if len(cites) == 0 {
		return raw, nil
	}
	b.WriteString(raw[last:])
	return b.String(), cites
}

// parseMarkers treats every open tag as an unclosed marker. The snippet runs
// from the marker to the next marker or the next ". ", whichever comes first.
func parseMarkers(raw string, tags []tag) (string, []models.RawCitation) {
	var markers []tag
	for _, t := range tags {
		if t.kind == tagOpen {
			markers = append(markers, t)
		}
	}
	if len(markers) == 0 {
		return raw, nil
	}

	var b strings.Builder
	cites := make([]models.RawCitation, 0, len(markers))
	last := 0

	for i, m := range markers {
		b.WriteString(raw[last:m.start])

		end := len(raw)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		if p := strings.Index(raw[m.end:], ". "); p >= 0 && m.end+p < end {
			end = m.end + p + 1
		}

		snippet := strings.TrimSpace(raw[m.end:end])
		start := b.Len()
		b.WriteString(snippet)

		cites = append(cites, models.RawCitation{
			SourceIndex:   m.sourceIndex,
			SentenceRange: m.sentenceRange,
			Snippet:       snippet,
			SnippetStart:  start,
			SnippetEnd:    b.Len(),
		})
		last = end
	}

	b.WriteString(raw[last:])
	return b.String(), cites
}

// scanTags lexes every well formed open tag and every close tag in order.
// Malformed open tags are left as plain text.
func scanTags(raw string) []tag {
	var tags []tag
	for i := 0; i < len(raw); {
		j := strings.IndexByte(raw[i:], '<')
		if j < 0 {
			break
		}
		pos := i + j

		if strings.HasPrefix(raw[pos:], closeTag) {
			tags = append(tags, tag{kind: tagClose, start: pos, end: pos + len(closeTag)})
			i = pos + len(closeTag)
			continue
		}
		if t, ok := scanOpenTag(raw, pos); ok {
			tags = append(tags, t)
			i = t.end
			continue
		}
		i = pos + 1
	}
	return tags
}

// scanOpenTag reads <CIT chunk_id='N' sentences='X-Y'> at pos. Either quote
// style is accepted and attributes are separated by whitespace.
func scanOpenTag(raw string, pos int) (tag, bool) {
	s := &lexer{src: raw, pos: pos}
	if !s.literal(openTagPrefix) || !s.spaces() || !s.literal("chunk_id=") || !s.quote() {
		return tag{}, false
	}
	id, ok := s.digits()
	if !ok || !s.quote() || !s.spaces() || !s.literal("sentences=") || !s.quote() {
		return tag{}, false
	}
	from, ok := s.digits()
	if !ok || !s.literal("-") {
		return tag{}, false
	}
	to, ok := s.digits()
	if !ok || !s.quote() || !s.literal(">") {
		return tag{}, false
	}

	index, err := strconv.Atoi(id)
	if err != nil {
		index = -1
	}
	return tag{
		kind:          tagOpen,
		start:         pos,
		end:           s.pos,
		sourceIndex:   index,
		sentenceRange: from + "-" + to,
	}, true
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) literal(want string) bool {
	if !strings.HasPrefix(l.src[l.pos:], want) {
		return false
	}
	l.pos += len(want)
	return true
}

// spaces consumes one or more ASCII whitespace bytes
func (l *lexer) spaces() bool {
	start := l.pos
	for l.pos < len(l.src) && isSpaceByte(l.src[l.pos]) {
		l.pos++
	}
	return l.pos > start
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func (l *lexer) quote() bool {
	if l.pos < len(l.src) && (l.src[l.pos] == '\'' || l.src[l.pos] == '"') {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) digits() (string, bool) {
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	return l.src[start:l.pos], l.pos > start
}
