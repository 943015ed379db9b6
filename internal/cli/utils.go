// Package cli provides output formatting and backends for the synapse CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts text, compact and json.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return OutputText, fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const separator = "─────────────────────────────────────────────────────────"

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%.4f\t%s#%d\t%s\n", r.Score, r.Path, r.ChunkIndex, r.Title)
		}
	default:
		writeSearchResultsText(w, response)
	}
	return nil
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n\n", response.Total, response.QueryTime, response.Mode)
	if response.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s?\n\n", response.Suggestion)
	}
	for i, r := range response.Results {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "[%d] Score: %.4f\n", i+1, r.Score)
		if r.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
		fmt.Fprintf(w, "Path: %s (chunk %d)\n", r.Path, r.ChunkIndex)
		if r.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Snippet, 300))
		}
		fmt.Fprintln(w)
	}
}

// WriteReport writes a consistency report.
func WriteReport(w io.Writer, report *models.ConsistencyReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	if report.Consistent() {
		fmt.Fprintln(w, "Stores are consistent.")
	} else {
		fmt.Fprintf(w, "Found %d problem(s):\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	if len(report.Fixed) > 0 {
		fmt.Fprintf(w, "Fixed %d:\n", len(report.Fixed))
		for _, f := range report.Fixed {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	return nil
}

// WriteStatus writes an index status summary.
func WriteStatus(w io.Writer, st *models.IndexStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # documents with a metadata record\n", st.Documents)
	fmt.Fprintf(w, "indexed_chunks:     %d   # entries in the vector index\n", st.IndexedChunks)
	fmt.Fprintf(w, "keyword_documents:  %d\n", st.KeywordDocuments)
	fmt.Fprintf(w, "database_size:      %s (%d bytes)\n", st.DatabaseSize, st.DatabaseSizeBytes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# embedding")
	fmt.Fprintf(w, "provider:           %s\n", st.Provider)
	fmt.Fprintf(w, "model:              %s\n", st.Model)
	fmt.Fprintf(w, "dimensions:         %d\n", st.Dimensions)
	fmt.Fprintf(w, "chunk_size:         %d\n", st.ChunkSize)
	fmt.Fprintf(w, "query_cache:        %d hit(s), %d miss(es)\n", st.QueryCacheHits, st.QueryCacheMisses)
	return nil
}

// WriteList writes a titled list of strings, one per line in text mode.
func WriteList(w io.Writer, title string, items []string, format OutputFormat) error {
	if items == nil {
		items = []string{}
	}
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{title: items})
	}
	if format != OutputCompact {
		fmt.Fprintf(w, "%s (%d):\n", title, len(items))
	}
	for _, item := range items {
		if format == OutputCompact {
			fmt.Fprintln(w, item)
		} else {
			fmt.Fprintf(w, "  %s\n", item)
		}
	}
	return nil
}

// WriteSyncResult writes the outcome of a vault sync.
func WriteSyncResult(w io.Writer, res *indexer.SyncResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Processed %d, unchanged %d, removed %d record(s)\n", res.Processed, res.Skipped, len(res.Removed))
	return nil
}
