package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantLimit int
	}{
		{"empty query", &SearchQuery{}, true, 0},
		{"valid query", &SearchQuery{Query: "hello"}, false, 10},
		{"vector only", &SearchQuery{Vector: []float32{1, 0}}, false, 10},
		{"keyword needs text", &SearchQuery{Vector: []float32{1}, Keyword: true}, true, 0},
		{"caps limit", &SearchQuery{Query: "x", Limit: 500}, false, 100},
		{"keeps limit", &SearchQuery{Query: "x", Limit: 3}, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(10, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
		})
	}
}
