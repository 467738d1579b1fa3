package citation

import (
	"strconv"
	"strings"

	"paper-citations-rag/internal/models"
)

// ParseSentenceRange parses "X-Y". Anything unparsable becomes (1, 1).
func ParseSentenceRange(s string) (int, int) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 1, 1
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 1, 1
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return 1, 1
	}
	return start, end
}

// SegmentPassages splits every passage into sentences, indexed like passages
func SegmentPassages(passages []models.Passage) [][]models.Sentence {
	out := make([][]models.Sentence, len(passages))
	for i, p := range passages {
		out[i] = SplitSentences(p.Content)
	}
	return out
}

// Enrich resolves a raw citation against the sentences of the passage it
// points at. An out of range passage or an empty sentence selection leaves the
// citation unresolved instead of failing.
func Enrich(rc models.RawCitation, passages []models.Passage, sentences [][]models.Sentence) models.Citation {
	from, to := ParseSentenceRange(rc.SentenceRange)

	var selected []models.Sentence
	if rc.SourceIndex >= 0 && rc.SourceIndex < len(sentences) {
		for _, s := range sentences[rc.SourceIndex] {
			if s.ID >= from && s.ID <= to {
				selected = append(selected, s)
			}
		}
	}

	c := models.Citation{
		RawCitation:     rc,
		SourceTextStart: -1,
		SourceTextEnd:   -1,
		DocumentName:    models.UnknownDocument,
		PassageIndex:    rc.SourceIndex,
	}

	if len(selected) > 0 {
		texts := make([]string, len(selected))
		for i, s := range selected {
			texts[i] = s.Text
		}
		c.SourceText = strings.Join(texts, " ")
		c.SourceTextStart = selected[0].StartChar
		c.SourceTextEnd = selected[len(selected)-1].EndChar
	}

	if rc.SourceIndex >= 0 && rc.SourceIndex < len(passages) {
		p := passages[rc.SourceIndex]
		if p.DocumentName != "" {
			c.DocumentName = p.DocumentName
		}
		c.PassageIndex = p.SequenceIndex
	}

	return c
}

// EnrichAll enriches citations in extraction order
func EnrichAll(raw []models.RawCitation, passages []models.Passage, sentences [][]models.Sentence) []models.Citation {
	out := make([]models.Citation, 0, len(raw))
	for _, rc := range raw {
		out = append(out, Enrich(rc, passages, sentences))
	}
	return out
}
