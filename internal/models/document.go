// Package models defines the persisted records of the index and the search API types.
package models

import "time"

// Properties is an open, loosely typed property map (strings, numbers, booleans, lists
// and nested maps), persisted as a JSON object.
type Properties map[string]interface{}

// ChunkDescriptor describes one chunk of a document as recorded in its metadata file.
// Start and End are character offsets into the document text, End exclusive.
type ChunkDescriptor struct {
	Index         int        `json:"index"`
	Hash          string     `json:"hash"`
	Start         int        `json:"start"`
	End           int        `json:"end"`
	LastProcessed time.Time  `json:"last_processed"`
	EmbeddingRef  string     `json:"embedding_ref"`
	Metadata      Properties `json:"metadata"`
}

// DocumentMetadata is the metadata record of one document.
type DocumentMetadata struct {
	DocumentID    string            `json:"document_id"`
	Path          string            `json:"path"`
	Title         string            `json:"title"`
	LastModified  time.Time         `json:"last_modified"`
	ChunkSize     int               `json:"chunk_size"`
	Chunks        []ChunkDescriptor `json:"chunks"`
	LastProcessed time.Time         `json:"last_processed"`
	Metadata      Properties        `json:"metadata"`
}

// Normalize replaces nil property maps and chunk lists with empty ones so they persist
// as {} and [] rather than null.
func (m *DocumentMetadata) Normalize() {
	if m.Metadata == nil {
		m.Metadata = Properties{}
	}
	if m.Chunks == nil {
		m.Chunks = []ChunkDescriptor{}
	}
	for i := range m.Chunks {
		if m.Chunks[i].Metadata == nil {
			m.Chunks[i].Metadata = Properties{}
		}
	}
}

// ChunkHashes returns chunk index -> content hash.
func (m *DocumentMetadata) ChunkHashes() map[int]string {
	hashes := make(map[int]string, len(m.Chunks))
	for _, c := range m.Chunks {
		hashes[c.Index] = c.Hash
	}
	return hashes
}

// Chunk returns the descriptor with the given index.
func (m *DocumentMetadata) Chunk(index int) (ChunkDescriptor, bool) {
	for _, c := range m.Chunks {
		if c.Index == index {
			return c, true
		}
	}
	return ChunkDescriptor{}, false
}

// DocumentInput is the request body for processing a document through the API.
// When Content is nil the document is read from the vault.
type DocumentInput struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}
