package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"paper-citations-rag/internal/models"
)

func citation(snippet string, start int, source string, sourceStart int) models.Citation {
	return models.Citation{
		RawCitation: models.RawCitation{
			SourceIndex:   0,
			SentenceRange: "1-1",
			Snippet:       snippet,
			SnippetStart:  start,
			SnippetEnd:    start + len(snippet),
		},
		SourceText:      source,
		SourceTextStart: sourceStart,
		SourceTextEnd:   sourceStart + len(source),
		DocumentName:    "attention",
		PassageIndex:    2,
	}
}

func TestFormatAnswer(t *testing.T) {
	res := &models.QueryResult{
		Query: "q",
		Result: models.NewCitationBlock("Later claim and early claim.", []models.Citation{
			citation("early claim", 16, "Early sentence.", 0),
			citation("Later claim", 0, "Later sentence.", 20),
		}),
		Passages: []models.Passage{{DocumentName: "attention", SequenceIndex: 2, Similarity: 0.875}},
	}
	locs := map[int]location{
		1: {Page: 3, Found: true, Span: models.SpanMatch{StartFragment: 4, EndFragment: 5, Partial: true}, Fragments: []string{"Later", "sentence."}},
		0: {Page: 1},
	}

	out := formatAnswer(res, locs)

	assert.True(t, strings.HasPrefix(out, "Later claim and early claim.\n"))
	first := strings.Index(out, `[1] "Later claim"`)
	second := strings.Index(out, `[2] "early claim"`)
	assert.Greater(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, out, "page 3, fragments 4-5, partial: Later | sentence.")
	assert.Contains(t, out, "      page 1\n")
	assert.Contains(t, out, "0. attention, chunk 2 (similarity 0.88)")
}

func TestFormatAnswer_Unresolved(t *testing.T) {
	c := citation("x", 0, "", -1)
	c.SourceTextEnd = -1
	res := &models.QueryResult{Result: models.NewCitationBlock("x", []models.Citation{c})}

	out := formatAnswer(res, nil)

	assert.Contains(t, out, "sentences 1-1 (not found)")
	assert.NotContains(t, out, "Sources:")
}

func TestFormatAnswer_NoCitations(t *testing.T) {
	res := &models.QueryResult{Result: models.NewCitationBlock("No relevant documents found.", nil)}

	assert.Equal(t, "No relevant documents found.\n", formatAnswer(res, nil))
}
