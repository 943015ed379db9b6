// Package storage persists per-document metadata and embedding records as one JSON
// file per document, written through the vault adapter.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/hyperjump/synapse/internal/vault"
	"go.uber.org/zap"
)

const fileExt = ".json"

// Option configures a store.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	useTrash bool
}

// WithLogger sets a logger for warnings and debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTrash makes Delete move files to the vault trash when the adapter supports it.
func WithTrash(enabled bool) Option {
	return func(o *options) { o.useTrash = enabled }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// jsonDir is a directory of <id>.json records.
type jsonDir struct {
	adapter vault.Adapter
	dir     string
	logger  *zap.Logger
}

func (j *jsonDir) pathFor(id string) string {
	return path.Join(j.dir, id+fileExt)
}

// read decodes the record at p into v. found is false when the file does not exist.
func (j *jsonDir) read(ctx context.Context, p string, v interface{}) (bool, error) {
	data, err := j.adapter.Read(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", p, err)
	}
	return true, nil
}

func (j *jsonDir) write(ctx context.Context, p string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}
	if err := j.adapter.Mkdir(ctx, j.dir); err != nil {
		return fmt.Errorf("failed to create %s: %w", j.dir, err)
	}
	if err := j.adapter.Write(ctx, p, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// list returns the record paths, creating the directory when it is missing.
func (j *jsonDir) list(ctx context.Context) ([]string, error) {
	exists, err := j.adapter.Exists(ctx, j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", j.dir, err)
	}
	if !exists {
		if err := j.adapter.Mkdir(ctx, j.dir); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", j.dir, err)
		}
		return []string{}, nil
	}
	files, err := j.adapter.List(ctx, j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", j.dir, err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f, fileExt) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (j *jsonDir) ids(ctx context.Context) ([]string, error) {
	files, err := j.list(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = IDFromPath(f)
	}
	return ids, nil
}

// remove deletes the record for id. A file that is already gone is not an error.
func (j *jsonDir) remove(ctx context.Context, id string, useTrash bool) error {
	p := j.pathFor(id)
	exists, err := j.adapter.Exists(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", p, err)
	}
	if !exists {
		return nil
	}
	if trasher, ok := j.adapter.(vault.Trasher); ok && useTrash {
		err = trasher.Trash(ctx, p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		j.logger.Warn("trash failed, removing instead", zap.String("path", p), zap.Error(err))
	}
	if err := j.adapter.Remove(ctx, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// removeAll deletes every record, logging and skipping failures, then removes the
// directory if it ended up empty.
func (j *jsonDir) removeAll(ctx context.Context) error {
	files, err := j.list(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, f := range files {
		if err := j.adapter.Remove(ctx, f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed++
			j.logger.Warn("failed to delete file", zap.String("path", f), zap.Error(err))
		}
	}
	if failed > 0 {
		return nil
	}
	if err := j.adapter.Rmdir(ctx, j.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		j.logger.Debug("directory not removed", zap.String("dir", j.dir), zap.Error(err))
	}
	return nil
}

// IDFromPath returns the document id encoded in a record file name.
func IDFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), fileExt)
}
