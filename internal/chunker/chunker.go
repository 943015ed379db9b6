// Package chunker splits text into fixed-size, non-overlapping chunks and hashes them.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// DefaultSize is the chunk length, in characters, used when none is configured.
const DefaultSize = 768

// ErrInvalidChunkSize is returned by callers that receive a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunk is one piece of a document. Start and End are character offsets into the
// original text, End exclusive.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunks splits text into consecutive pieces of size characters; the last piece may be
// shorter. Offsets are counted in runes so multi-byte text never splits mid-character.
// Empty text or a non-positive size yields no chunks.
func Chunks(text string, size int) []Chunk {
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	chunks := make([]Chunk, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
	}
	return chunks
}

// Split returns only the chunk texts of Chunks(text, size).
func Split(text string, size int) []string {
	chunks := Chunks(text, size)
	if chunks == nil {
		return nil
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// Hash returns the lowercase hex SHA-256 of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
