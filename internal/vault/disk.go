package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/synapse/internal/extract"
	"go.uber.org/zap"
)

// TrashDir is the vault-relative directory soft-deleted files are moved to.
const TrashDir = ".trash"

// Disk is a vault rooted at a local directory.
type Disk struct {
	root       string
	extensions map[string]bool
	skipDirs   map[string]bool
	extractor  *extract.Extractor
	logger     *zap.Logger
}

// DiskOption configures a Disk vault.
type DiskOption func(*Disk)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) DiskOption {
	return func(d *Disk) { d.logger = l }
}

// WithExtensions limits Documents to files with these extensions (case-insensitive).
// Without it every file is a document.
func WithExtensions(exts ...string) DiskOption {
	return func(d *Disk) {
		for _, e := range exts {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			d.extensions[e] = true
		}
	}
}

// WithSkipDirs excludes top-level vault directories (such as the index data dir) from Documents.
func WithSkipDirs(dirs ...string) DiskOption {
	return func(d *Disk) {
		for _, dir := range dirs {
			d.skipDirs[path.Clean(filepath.ToSlash(dir))] = true
		}
	}
}

// NewDisk opens the vault at root, creating the directory if needed.
func NewDisk(root string, opts ...DiskOption) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	d := &Disk{
		root:       abs,
		extensions: make(map[string]bool),
		skipDirs:   map[string]bool{TrashDir: true},
		extractor:  extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Root returns the absolute vault directory.
func (d *Disk) Root() string {
	return d.root
}

// Abs converts a vault path to an absolute file system path.
func (d *Disk) Abs(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%q: %w", p, ErrOutsideVault)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// Rel converts an absolute file system path to a vault path.
func (d *Disk) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, filepath.Clean(abs))
	if err != nil {
		return "", fmt.Errorf("%q: %w", abs, ErrOutsideVault)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", abs, ErrOutsideVault)
	}
	return filepath.ToSlash(rel), nil
}

func (d *Disk) Read(_ context.Context, p string) ([]byte, error) {
	full, err := d.Abs(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Write replaces the file atomically, creating parent directories.
func (d *Disk) Write(_ context.Context, p string, data []byte) error {
	full, err := d.Abs(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (d *Disk) Exists(_ context.Context, p string) (bool, error) {
	full, err := d.Abs(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (d *Disk) List(_ context.Context, dir string) ([]string, error) {
	full, err := d.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		out = append(out, path.Join(path.Clean(filepath.ToSlash(dir)), e.Name()))
	}
	return out, nil
}

func (d *Disk) Mkdir(_ context.Context, dir string) error {
	full, err := d.Abs(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0755)
}

func (d *Disk) Remove(_ context.Context, p string) error {
	full, err := d.Abs(p)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

// Rmdir removes an empty directory.
func (d *Disk) Rmdir(_ context.Context, dir string) error {
	full, err := d.Abs(dir)
	if err != nil {
		return err
	}
	if full == d.root {
		return fmt.Errorf("refusing to remove vault root")
	}
	return os.Remove(full)
}

func (d *Disk) Stat(_ context.Context, p string) (*FileInfo, error) {
	full, err := d.Abs(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

// Trash moves the file into the vault trash directory, keeping its relative path. A
// name already taken in the trash gets a random suffix.
func (d *Disk) Trash(ctx context.Context, p string) error {
	full, err := d.Abs(p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		return err
	}
	rel, _ := d.Rel(full)
	dest, err := d.Abs(path.Join(TrashDir, rel))
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "-" + uuid.New().String()[:8] + ext
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(full, dest); err != nil {
		return err
	}
	if d.logger != nil {
		d.logger.Debug("moved file to trash", zap.String("path", p), zap.String("trash", dest))
	}
	return nil
}

// ReadDocument returns the text of a document, converting rich formats to plain text.
func (d *Disk) ReadDocument(_ context.Context, p string) (string, time.Time, error) {
	full, err := d.Abs(p)
	if err != nil {
		return "", time.Time{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", time.Time{}, err
	}
	if info.IsDir() {
		return "", time.Time{}, fmt.Errorf("%q is a directory", p)
	}
	text, err := d.extractor.Extract(full)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to extract %q: %w", p, err)
	}
	return text, info.ModTime(), nil
}

// IsDocument reports whether p is a document path: not inside a skipped directory and,
// when extensions are configured, carrying one of them.
func (d *Disk) IsDocument(p string) bool {
	p = path.Clean(filepath.ToSlash(p))
	for dir := range d.skipDirs {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return false
		}
	}
	if len(d.extensions) == 0 {
		return true
	}
	return d.extensions[strings.ToLower(path.Ext(p))]
}

// Documents walks the vault and returns every document path, sorted. Hidden directories
// are not descended into.
func (d *Disk) Documents(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(full string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if full == d.root {
			return nil
		}
		rel, relErr := d.Rel(full)
		if relErr != nil {
			return relErr
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") || d.skipDirs[rel] {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() && d.IsDocument(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
