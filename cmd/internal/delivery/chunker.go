package delivery

import "strings"

const (
	// DefaultChunkLimit leaves headroom under the platform's 2000-char cap.
	DefaultChunkLimit = 1900

	// A break point is only taken when it lands past this fraction of the
	// window; earlier breaks would produce tiny leading chunks.
	minBreakFraction = 0.3
)

// Split cuts text into chunks of at most limit runes, preferring paragraph
// breaks, then single newlines, then sentence ends, before falling back to a
// hard cut.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	minBreak := int(float64(limit) * minBreakFraction)

	var chunks []string
	remaining := runes
	for len(remaining) > limit {
		window := string(remaining[:limit])
		breakAt := limit

		if para := strings.LastIndex(window, "\n\n"); para > minBreak {
			breakAt = len([]rune(window[:para])) + 2
		} else if line := strings.LastIndex(window, "\n"); line > minBreak {
			breakAt = len([]rune(window[:line])) + 1
		} else {
			for _, punct := range []string{". ", "! ", "? "} {
				if sent := strings.LastIndex(window, punct); sent > minBreak {
					breakAt = len([]rune(window[:sent])) + 2
					break
				}
			}
		}

		chunks = append(chunks, strings.TrimSpace(string(remaining[:breakAt])))
		remaining = []rune(strings.TrimSpace(string(remaining[breakAt:])))
	}

	if len(remaining) > 0 {
		chunks = append(chunks, string(remaining))
	}

	return chunks
}
