package models

import "time"

// VectorEntry is one searchable chunk in the vector index.
type VectorEntry struct {
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkHash    string    `json:"chunk_hash"`
	EmbeddingRef string    `json:"embedding_ref"`
	Path         string    `json:"path"`
	Embedding    []float32 `json:"embedding"`
}

// VectorIndexFile is the persisted form of the vector index.
type VectorIndexFile struct {
	Entries     []VectorEntry `json:"entries"`
	LastUpdated time.Time     `json:"last_updated"`
}

// VectorHit is a scored vector index match.
type VectorHit struct {
	Path       string  `json:"path"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}
