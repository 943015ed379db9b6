package models

// ConsistencyReport lists the problems a consistency check found and the repairs it made.
type ConsistencyReport struct {
	Errors []string `json:"errors"`
	Fixed  []string `json:"fixed"`
}

// Consistent reports whether the check found nothing to complain about.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.Errors) == 0
}

// IndexStatus summarizes the stores for the status command and endpoint.
type IndexStatus struct {
	Documents         int    `json:"documents"`
	IndexedChunks     int    `json:"indexed_chunks"`
	KeywordDocuments  uint64 `json:"keyword_documents"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
	DatabaseSize      string `json:"database_size"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Dimensions        int    `json:"dimensions"`
	ChunkSize         int    `json:"chunk_size"`
	QueryCacheHits    uint64 `json:"query_cache_hits"`
	QueryCacheMisses  uint64 `json:"query_cache_misses"`
}
