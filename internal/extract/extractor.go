// Package extract turns document files in the vault into plain text for chunking.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Func extracts text from the raw bytes of one format.
type Func func(content []byte) (string, error)

// Extractor dispatches on file extension. Unknown extensions are read as plain text.
type Extractor struct {
	formats map[string]Func
	// pathFormats need the file on disk rather than its bytes.
	pathFormats map[string]func(path string) (string, error)
}

// NewExtractor returns an Extractor with every built-in format registered.
func NewExtractor() *Extractor {
	e := &Extractor{
		formats:     make(map[string]Func),
		pathFormats: make(map[string]func(string) (string, error)),
	}
	for _, ext := range []string{".txt", ".md", ".markdown", ".rst", ".csv", ""} {
		e.Register(ext, extractPlain)
	}
	e.Register(".pdf", extractPDF)
	e.Register(".xlsx", extractExcel)
	e.Register(".docx", extractDOCX)
	e.Register(".pptx", extractPPTX)
	e.Register(".odp", extractODF)
	e.Register(".ods", extractODF)
	e.pathFormats[".odt"] = extractWithCat
	e.pathFormats[".rtf"] = extractWithCat
	return e
}

// Register adds or replaces the extractor for ext (leading dot, any case).
func (e *Extractor) Register(ext string, fn Func) {
	e.formats[strings.ToLower(ext)] = fn
}

// Supported returns the registered extensions, sorted, without the empty extension.
func (e *Extractor) Supported() []string {
	out := make([]string, 0, len(e.formats)+len(e.pathFormats))
	for ext := range e.formats {
		if ext != "" {
			out = append(out, ext)
		}
	}
	for ext := range e.pathFormats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if fn, ok := e.pathFormats[ext]; ok {
		return fn(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension (with leading dot).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if fn, ok := e.pathFormats[ext]; ok {
		return extractViaTempFile(content, ext, fn)
	}
	if fn, ok := e.formats[ext]; ok {
		return fn(content)
	}
	return extractPlain(content)
}

func extractViaTempFile(content []byte, ext string, fn func(string) (string, error)) (string, error) {
	f, err := os.CreateTemp("", "synapse-extract-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return fn(f.Name())
}
