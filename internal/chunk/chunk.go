// Package chunk splits normalized document text into overlapping
// fixed-size windows for embedding.
package chunk

import (
	"fmt"
	"strings"
)

// DefaultSize is the default window size in characters.
const DefaultSize = 1200

// DefaultOverlap is the default number of characters shared between
// consecutive windows.
const DefaultOverlap = 200

// Split cuts text into ordered windows of at most size characters, with
// consecutive windows sharing overlap characters. Sizes are counted in
// runes, not bytes. The split is deterministic: the same text and
// parameters always produce the same windows. Empty or whitespace-only
// input yields no windows.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk: overlap must be in [0, size), got %d with size %d", overlap, size)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)

	out := make([]string, 0, n/(size-overlap)+1)
	i := 0
	for i < n {
		j := i + size
		if j > n {
			j = n
		}
		out = append(out, string(runes[i:j]))
		if j == n {
			break
		}
		i = j - overlap
		if i < 0 {
			i = 0
		}
	}
	return out, nil
}
