package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100
)

var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunk splits text into overlapping windows of size words that advance by
// size-overlap words. The window that reaches the end of the text is the
// last one emitted.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	step := size - overlap
	chunks := make([]string, 0, Count(len(words), size, overlap))
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if start+size >= len(words) {
			break
		}
	}
	return chunks, nil
}

func Default(text string) []string {
	chunks, _ := Chunk(text, DefaultChunkSize, DefaultOverlap)
	return chunks
}

// Count returns how many windows Chunk produces for wordCount words.
func Count(wordCount, size, overlap int) int {
	if wordCount <= 0 || size <= 0 || overlap < 0 || overlap >= size {
		return 0
	}
	if wordCount <= size {
		return 1
	}
	step := size - overlap
	return (wordCount-size+step-1)/step + 1
}
