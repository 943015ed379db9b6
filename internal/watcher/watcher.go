// Package watcher follows file changes in a vault directory with fsnotify and reports them,
// debounced, as vault-relative paths.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/synapse/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a vault directory tree and invokes callbacks on document changes.
// Hidden directories (the index data dir and the trash among them) are never watched.
type Watcher struct {
	root        string
	accept      func(rel string) bool
	onChange    func(rel string)
	onRemove    func(rel string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the vault at root. accept filters document paths (nil
// accepts all). onChange fires after a document is created or written; onRemove fires
// when one is removed or renamed away.
func NewWatcher(root string, accept func(rel string) bool, onChange, onRemove func(rel string), opts ...Option) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		accept:      accept,
		onChange:    onChange,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting", zap.String("root", w.root))
	if err := w.addTreeLocked(w.root); err != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	events, errs := watcher.Events, watcher.Errors
	w.mu.Unlock()
	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, ok := w.rel(ev.Name)
	if !ok || hidden(rel) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", rel))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(ev.Name)
			return
		}
		if w.accepts(rel) {
			w.debounceChange(rel)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(rel)
		if w.accepts(rel) && w.onRemove != nil {
			w.onRemove(rel)
		}
	}
}

// handleNewDirectory watches a directory created or moved into the vault and reports the
// documents already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if err := w.addTreeLocked(dir); err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.mu.Unlock()

	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if rel, ok := w.rel(p); ok && w.accepts(rel) {
			w.debounceChange(rel)
		}
		return nil
	})
}

// addTreeLocked watches dir and every non-hidden directory below it, creating dir when
// missing.
func (w *Watcher) addTreeLocked(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) accepts(rel string) bool {
	return w.accept == nil || w.accept(rel)
}

// hidden reports whether any element of the vault path starts with a dot.
func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceChange(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[rel]; ok {
		t.Stop()
	}
	w.debounceMap[rel] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, rel)
		w.mu.Unlock()
		w.logger.Debug("watcher reporting change (debounced)", zap.String("path", rel))
		if w.onChange != nil {
			w.onChange(rel)
		}
	})
}

func (w *Watcher) cancelDebounce(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[rel]; ok {
		t.Stop()
		delete(w.debounceMap, rel)
	}
}

// Stop stops the watcher and releases resources. Pending debounced changes are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for p, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, p)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
