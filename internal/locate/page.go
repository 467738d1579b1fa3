package locate

import (
	"strings"

	"paper-citations-rag/internal/textnorm"
)

// FindPage returns the 1-based page whose text contains sourceText. Pages are
// scanned in order and each is checked for the full citation, then for its
// prefix, so an earlier partial hit wins over a later exact one.
func FindPage(pages []string, sourceText string) (int, bool) {
	needle := textnorm.Normalize(sourceText).Text
	if needle == "" || len(pages) == 0 {
		return 0, false
	}
	prefix, hasPrefix := matchPrefix(needle)

	for i, p := range pages {
		text := textnorm.Normalize(p).Text
		if strings.Contains(text, needle) {
			return i + 1, true
		}
		if hasPrefix && strings.Contains(text, prefix) {
			return i + 1, true
		}
	}
	return 0, false
}
