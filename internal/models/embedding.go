package models

// EmbeddingFile maps chunk index to embedding vector for one document.
type EmbeddingFile map[int][]float32
