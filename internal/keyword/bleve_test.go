package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "keyword"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	doc := &Document{
		Title:   "Monthly Report 17",
		Path:    "reports/monthly-17.md",
		Content: "This report mentions Omnisyan and other findings. The Bayes app is also referenced.",
	}
	if err := idx.Index(ctx, "cmVwb3J0cw", doc); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ID != "cmVwb3J0cw" {
		t.Fatalf("expected a hit for \"Omnisyan\", got %v", results)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes" in content
	results, err = idx.Search(ctx, "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a hit for \"bayes\"")
	}
}

func TestBleveIndex_SearchFindsTitleAndTags(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, "a", &Document{Title: "Garden plan", Tags: []string{"outdoors"}, Content: "Some body text."}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	for _, q := range []string{"garden", "outdoors"} {
		results, err := idx.Search(ctx, q, 10, nil)
		if err != nil {
			t.Fatalf("Search %q: %v", q, err)
		}
		if len(results) != 1 {
			t.Errorf("Search %q: got %d results, want 1", q, len(results))
		}
	}
}

func TestBleveIndex_TitleBoostRanksTitleMatchFirst(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "body", &Document{Title: "Notes", Content: "compost compost compost heap"})
	_ = idx.Index(ctx, "title", &Document{Title: "Compost", Content: "how to start a heap"})

	results, err := idx.Search(ctx, "compost heap", 10, &SearchOptions{TitleBoost: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "title" {
		t.Errorf("first result = %q, want title match", results[0].ID)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "a", &Document{Title: "T", Content: "kubernetes cluster"})

	results, err := idx.Search(ctx, "kubernets", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy search got %d results, want 1", len(results))
	}
}

func TestBleveIndex_EmptyQueryAndLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "a", &Document{Content: "word"})
	if r, _ := idx.Search(ctx, "  ", 10, nil); len(r) != 0 {
		t.Errorf("blank query returned %d results", len(r))
	}
	if r, _ := idx.Search(ctx, "word", 0, nil); len(r) != 0 {
		t.Errorf("zero limit returned %d results", len(r))
	}
}

func TestBleveIndex_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword")
	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	ctx := context.Background()
	if err := idx1.Index(ctx, "doc1", &Document{Title: "T", Content: "uniqueword"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex (open existing): %v", err)
	}
	defer func() { _ = idx2.Close() }()
	results, err := idx2.Search(ctx, "uniqueword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results after reopen, want 1", len(results))
	}
}

func TestBleveIndex_DeleteAndReset(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "doc1", &Document{Title: "T", Content: "onlyindoc1"})
	_ = idx.Index(ctx, "doc2", &Document{Title: "T", Content: "onlyindoc2"})

	if err := idx.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r, _ := idx.Search(ctx, "onlyindoc1", 10, nil); len(r) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(r))
	}
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}

	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount after reset = %d, want 0", n)
	}
	if err := idx.Index(ctx, "doc3", &Document{Content: "again"}); err != nil {
		t.Fatalf("Index after reset: %v", err)
	}
}

func TestBleveIndex_Terms(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "a", &Document{Title: "Alpha", Content: "shared words"})
	_ = idx.Index(ctx, "b", &Document{Title: "Beta", Content: "shared"})

	terms, err := idx.Terms()
	if err != nil {
		t.Fatalf("Terms: %v", err)
	}
	if terms["shared"] != 2 {
		t.Errorf("frequency of shared = %d, want 2", terms["shared"])
	}
	if _, ok := terms["alpha"]; !ok {
		t.Error("title terms should be included")
	}
}

func TestNewBleveIndex_createsDir(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "sub", "keyword")
	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Close()
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("index path should exist: %v", err)
	}
}
