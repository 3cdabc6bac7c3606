package ingest

import "strings"

// Chunking defaults: sliding word windows wide enough for a coherent
// passage with enough overlap that a sentence split across a boundary
// still appears whole in one chunk.
const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 40
)

// Chunk splits text into word windows of size words advancing by
// size-overlap each step. Text at or under the window size yields a
// single chunk; empty text yields none.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 2
		}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
