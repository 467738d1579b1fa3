package citation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"paper-citations-rag/internal/models"
)

// SplitSentences splits a passage into sentences at '.', '!' or '?' followed
// by whitespace. Abbreviations and decimals followed by a space split too.
func SplitSentences(passage string) []models.Sentence {
	var sentences []models.Sentence
	cursor := 0

	for _, part := range splitOnTerminators(passage) {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}

		// search forward only so a repeated phrase never moves offsets backwards
		start := cursor
		if i := strings.Index(passage[cursor:], text); i >= 0 {
			start = cursor + i
		}
		end := start + len(text)

		sentences = append(sentences, models.Sentence{
			ID:        len(sentences) + 1,
			Text:      text,
			StartChar: start,
			EndChar:   end,
		})
		cursor = end
	}

	return sentences
}

// splitOnTerminators cuts text after each terminator that is followed by
// whitespace and drops the whitespace run.
func splitOnTerminators(text string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		i += w
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if i >= len(text) || !unicode.IsSpace(next) {
			continue
		}
		parts = append(parts, text[start:i])
		for i < len(text) {
			r, w := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += w
		}
		start = i
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}
