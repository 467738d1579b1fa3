package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-citations-rag/internal/models"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Deep learning works. It scales well! Does it generalize? Yes.")

	want := []models.Sentence{
		{ID: 1, Text: "Deep learning works.", StartChar: 0, EndChar: 20},
		{ID: 2, Text: "It scales well!", StartChar: 21, EndChar: 36},
		{ID: 3, Text: "Does it generalize?", StartChar: 37, EndChar: 56},
		{ID: 4, Text: "Yes.", StartChar: 57, EndChar: 61},
	}
	assert.Equal(t, want, got)
}

func TestSplitSentences_RepeatedPhraseNeverMovesBackwards(t *testing.T) {
	got := SplitSentences("Yes. No. Yes. No.")

	require.Len(t, got, 4)
	assert.Equal(t, 0, got[0].StartChar)
	assert.Equal(t, 5, got[1].StartChar)
	assert.Equal(t, 9, got[2].StartChar)
	assert.Equal(t, 14, got[3].StartChar)
}

func TestSplitSentences_LossyOnAbbreviations(t *testing.T) {
	got := SplitSentences("Dr. Smith arrived. He sat.")

	texts := make([]string, len(got))
	for i, s := range got {
		texts[i] = s.Text
	}
	assert.Equal(t, []string{"Dr.", "Smith arrived.", "He sat."}, texts)
}

func TestSplitSentences_DecimalWithoutSpaceStaysWhole(t *testing.T) {
	got := SplitSentences("Pi is 3.14 exactly. Done.")

	require.Len(t, got, 2)
	assert.Equal(t, "Pi is 3.14 exactly.", got[0].Text)
}

func TestSplitSentences_WhitespaceAndNewlines(t *testing.T) {
	passage := "  First.\n\nSecond line\nwraps. "
	got := SplitSentences(passage)

	require.Len(t, got, 2)
	assert.Equal(t, models.Sentence{ID: 1, Text: "First.", StartChar: 2, EndChar: 8}, got[0])
	assert.Equal(t, "Second line\nwraps.", got[1].Text)
	assert.Equal(t, 10, got[1].StartChar)
}

func TestSplitSentences_Empty(t *testing.T) {
	assert.Empty(t, SplitSentences(""))
	assert.Empty(t, SplitSentences(" \n\t "))
}

func TestSplitSentences_OffsetsReproduceText(t *testing.T) {
	passages := []string{
		"Transformers dominate NLP. They use attention!  Attention is all you need? Maybe.",
		"No terminator at all",
		"Ends with terminator only.",
		"Über-models löst Probleme. Größer ist besser!\nWirklich?",
		"One. One. One.",
	}

	for _, p := range passages {
		prevEnd := 0
		for i, s := range SplitSentences(p) {
			assert.Equal(t, i+1, s.ID)
			assert.GreaterOrEqual(t, s.StartChar, prevEnd, p)
			assert.Equal(t, s.Text, p[s.StartChar:s.EndChar], p)
			prevEnd = s.EndChar
		}
	}
}
