package models

// SearchResult is a search hit joined with its document metadata.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Path       string  `json:"path"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
	Type       string  `json:"type"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
	Mode      string          `json:"mode"`
	// Suggestion is a spelling correction for keyword queries that matched nothing.
	Suggestion string `json:"suggestion,omitempty"`
}
