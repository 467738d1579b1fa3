package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minChunkLen drops slivers such as page footers left at a window edge
const minChunkLen = 50

var blankLines = regexp.MustCompile(`\n{3,}`)

// ChunkText splits text into overlapping windows of about ChunkSize bytes.
// Each window ends at the last paragraph break, sentence end or space found
// past 30% of the window, in that order of preference. Windows always advance
// by at least half a window.
func (p *PDFProcessor) ChunkText(text string) []string {
	cleaned := strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
	if cleaned == "" {
		return nil
	}
	size, overlap := p.ChunkSize, p.ChunkOverlap
	if size <= 0 {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	if len(cleaned) <= size {
		return []string{cleaned}
	}

	minBreak := int(float64(size) * 0.3)
	minStep := max(size/2, 1)

	var chunks []string
	for start := 0; start < len(cleaned); {
		end := start + size
		if end >= len(cleaned) {
			if chunk := strings.TrimSpace(cleaned[start:]); len(chunk) > minChunkLen {
				chunks = append(chunks, chunk)
			}
			break
		}
		end = max(runeFloor(cleaned, end), start+1)

		window := cleaned[start:end]
		breakPoint := end
		if i := strings.LastIndex(window, "\n\n"); i > minBreak {
			breakPoint = start + i
		} else if i := strings.LastIndex(window, ". "); i > minBreak {
			breakPoint = start + i + 2
		} else if i := strings.LastIndex(window, " "); i > minBreak {
			breakPoint = start + i + 1
		}

		if chunk := strings.TrimSpace(cleaned[start:breakPoint]); len(chunk) > minChunkLen {
			chunks = append(chunks, chunk)
		}

		start = runeCeil(cleaned, max(breakPoint-overlap, start+minStep))
	}

	return chunks
}

// runeCeil moves i forward to the next rune start
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
