package storage

import (
	"context"
	"errors"
	"io/fs"

	"github.com/hyperjump/synapse/internal/vault"
)

// DiskUsageBytes returns the total size in bytes of the given vault paths. Each path may
// be a file or a directory; directories count the files directly inside them. Missing
// paths contribute 0.
func DiskUsageBytes(ctx context.Context, adapter vault.Adapter, paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := adapter.Stat(ctx, p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		if !info.IsDir {
			total += info.Size
			continue
		}
		files, err := adapter.List(ctx, p)
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			fi, err := adapter.Stat(ctx, f)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return 0, err
			}
			total += fi.Size
		}
	}
	return total, nil
}
