// Package fileid derives reversible document IDs from vault paths.
package fileid

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// embeddingRefPrefix is how metadata chunk descriptors point at the embedding file,
// relative to the metadata directory.
const embeddingRefPrefix = "../embeddings/"

// DocumentID returns the URL-safe, unpadded base64 encoding of the raw path bytes.
// Distinct paths always map to distinct IDs and the ID is safe to use as a file name.
func DocumentID(path string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(path))
}

// Parse returns the path a DocumentID was derived from.
func Parse(id string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("invalid document id %q: %w", id, err)
	}
	return string(b), nil
}

// EmbeddingRef returns the reference stored in a chunk descriptor for chunk index of id.
func EmbeddingRef(id string, index int) string {
	return embeddingRefPrefix + id + ".json#" + strconv.Itoa(index)
}

// ParseEmbeddingRef splits a reference produced by EmbeddingRef. ok is false when the
// reference does not have the "<dir>/<id>.json#<index>" shape.
func ParseEmbeddingRef(ref string) (id string, index int, ok bool) {
	hash := strings.LastIndexByte(ref, '#')
	if hash < 0 {
		return "", 0, false
	}
	index, err := strconv.Atoi(ref[hash+1:])
	if err != nil || index < 0 {
		return "", 0, false
	}
	file := ref[:hash]
	if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
		file = file[slash+1:]
	}
	id, found := strings.CutSuffix(file, ".json")
	if !found || id == "" {
		return "", 0, false
	}
	return id, index, true
}
