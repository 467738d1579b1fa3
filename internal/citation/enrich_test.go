package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"paper-citations-rag/internal/models"
)

func testPassages() []models.Passage {
	return []models.Passage{
		{ID: "p-7", DocumentName: "paper.pdf", SequenceIndex: 7, Content: "Alpha one. Beta two. Gamma three."},
		{ID: "p-2", DocumentName: "", SequenceIndex: 2, Content: "Only sentence here."},
	}
}

func TestParseSentenceRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end int
	}{
		{"2-3", 2, 3},
		{" 4 - 9 ", 4, 9},
		{"5-5", 5, 5},
		{"3", 1, 1},
		{"x-y", 1, 1},
		{"", 1, 1},
		{"2-", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end := ParseSentenceRange(tt.in)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestEnrich_ResolvesSentenceRange(t *testing.T) {
	passages := testPassages()
	rc := models.RawCitation{SourceIndex: 0, SentenceRange: "2-3", Snippet: "beta", SnippetStart: 0, SnippetEnd: 4}

	c := Enrich(rc, passages, SegmentPassages(passages))

	assert.Equal(t, rc, c.RawCitation)
	assert.Equal(t, "Beta two. Gamma three.", c.SourceText)
	assert.Equal(t, 11, c.SourceTextStart)
	assert.Equal(t, 33, c.SourceTextEnd)
	assert.Equal(t, "paper.pdf", c.DocumentName)
	assert.Equal(t, 7, c.PassageIndex)
	assert.True(t, c.Resolved())
}

func TestEnrich_UnparsableRangeFallsBackToFirstSentence(t *testing.T) {
	passages := testPassages()

	c := Enrich(models.RawCitation{SourceIndex: 0, SentenceRange: "x-y"}, passages, SegmentPassages(passages))

	assert.Equal(t, "Alpha one.", c.SourceText)
	assert.Equal(t, 0, c.SourceTextStart)
	assert.Equal(t, 10, c.SourceTextEnd)
}

func TestEnrich_RangePastLastSentence(t *testing.T) {
	passages := testPassages()

	c := Enrich(models.RawCitation{SourceIndex: 0, SentenceRange: "5-6"}, passages, SegmentPassages(passages))

	assert.Empty(t, c.SourceText)
	assert.Equal(t, -1, c.SourceTextStart)
	assert.Equal(t, -1, c.SourceTextEnd)
	assert.Equal(t, "paper.pdf", c.DocumentName)
	assert.Equal(t, 7, c.PassageIndex)
	assert.False(t, c.Resolved())
}

func TestEnrich_PartialRangeKeepsMatchingSentences(t *testing.T) {
	passages := testPassages()

	c := Enrich(models.RawCitation{SourceIndex: 0, SentenceRange: "3-8"}, passages, SegmentPassages(passages))

	assert.Equal(t, "Gamma three.", c.SourceText)
	assert.Equal(t, 21, c.SourceTextStart)
	assert.Equal(t, 33, c.SourceTextEnd)
}

func TestEnrich_SourceIndexOutOfBounds(t *testing.T) {
	passages := testPassages()

	for _, idx := range []int{3, -1} {
		c := Enrich(models.RawCitation{SourceIndex: idx, SentenceRange: "1-1"}, passages, SegmentPassages(passages))

		assert.Equal(t, models.UnknownDocument, c.DocumentName)
		assert.Equal(t, idx, c.PassageIndex)
		assert.Equal(t, -1, c.SourceTextStart)
		assert.Empty(t, c.SourceText)
	}
}

func TestEnrich_EmptyDocumentNameIsUnknown(t *testing.T) {
	passages := testPassages()

	c := Enrich(models.RawCitation{SourceIndex: 1, SentenceRange: "1-1"}, passages, SegmentPassages(passages))

	assert.Equal(t, models.UnknownDocument, c.DocumentName)
	assert.Equal(t, 2, c.PassageIndex)
	assert.Equal(t, "Only sentence here.", c.SourceText)
}

func TestEnrichAll_KeepsExtractionOrder(t *testing.T) {
	passages := testPassages()
	raw := []models.RawCitation{
		{SourceIndex: 1, SentenceRange: "1-1", SnippetStart: 20},
		{SourceIndex: 0, SentenceRange: "1-1", SnippetStart: 5},
	}

	out := EnrichAll(raw, passages, SegmentPassages(passages))

	assert.Len(t, out, 2)
	assert.Equal(t, 20, out[0].SnippetStart)
	assert.Equal(t, 5, out[1].SnippetStart)
	assert.NotNil(t, EnrichAll(nil, passages, nil))
}
