package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem events under a mods root into coalesced
// "something changed" signals. It is only a nudge: the reload cycle still
// walks and fingerprints the tree, so dropped or duplicated events are
// harmless.
type Watcher struct {
	root    string
	skip    map[string]bool
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	changes chan struct{}

	closeOnce sync.Once
}

// NewWatcher watches root and every directory beneath it except hidden
// ones and those in skip.
func NewWatcher(root string, skip []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	canonRoot, err := CanonicalRoot(root)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:    canonRoot,
		skip:    make(map[string]bool, len(skip)),
		logger:  logger,
		watcher: fw,
		changes: make(chan struct{}, 1),
	}
	for _, s := range skip {
		w.skip[s] = true
	}

	if err := w.addTree(canonRoot); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Changes delivers at most one pending signal at a time.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run pumps events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching mods", "root", w.root)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}
	w.logger.Debug("mods changed", "event", event.Op.String(), "file", event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watch new directory", "dir", event.Name, "error", err)
			}
		}
	}

	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) ignored(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	for dir := range w.skip {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
