// Package vault is the document store the index is built from: a directory of notes
// and files, addressed by slash-separated paths relative to its root.
package vault

import (
	"context"
	"errors"
	"time"
)

// ErrOutsideVault is returned for paths that resolve outside the vault root.
var ErrOutsideVault = errors.New("path is outside the vault")

// FileInfo is the subset of file metadata the index needs.
type FileInfo struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Adapter is the file API the stores persist through. Missing files surface as errors
// satisfying errors.Is(err, fs.ErrNotExist).
type Adapter interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	// List returns the paths of the regular files directly inside dir.
	List(ctx context.Context, dir string) ([]string, error)
	Mkdir(ctx context.Context, dir string) error
	Remove(ctx context.Context, path string) error
	Rmdir(ctx context.Context, dir string) error
	Stat(ctx context.Context, path string) (*FileInfo, error)
}

// Trasher is implemented by adapters that can soft-delete files.
type Trasher interface {
	Trash(ctx context.Context, path string) error
}

// DocumentSource supplies document text to the processing pipeline.
type DocumentSource interface {
	ReadDocument(ctx context.Context, path string) (content string, modTime time.Time, err error)
	Documents(ctx context.Context) ([]string, error)
}
