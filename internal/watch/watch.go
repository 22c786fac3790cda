// Package watch re-stages files whenever they change on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dis/internal/index"
	"dis/internal/object"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Stager is the part of a repository the watcher writes through.
type Stager interface {
	Hash(content []byte) object.Digest
	Stage(path string, content []byte) (index.Entry, error)
}

// Watcher stages a fixed set of files on every write. Content identical to
// what was last staged for a path is skipped.
type Watcher struct {
	stager  Stager
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	// files maps a cleaned absolute path to its staged path.
	files map[string]string

	mu   sync.Mutex
	last map[string]object.Digest

	// OnStage, if set, is called after each successful stage.
	OnStage func(index.Entry)
}

// New watches paths, which are staged relative to root. The containing
// directories are watched so editors that replace files by rename are
// still seen.
func New(stager Stager, root string, paths []string, logger *zap.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	files := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("%s is outside %s", p, root)
		}
		files[abs] = filepath.ToSlash(rel)
		dirs[filepath.Dir(abs)] = true
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	return &Watcher{
		stager:  stager,
		watcher: fw,
		logger:  logger,
		files:   files,
		last:    make(map[string]object.Digest),
	}, nil
}

// Seed records entries as already staged.
func (w *Watcher) Seed(entries []index.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		w.last[e.Path] = e.Digest
	}
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if _, _, err := w.handleEvent(event); err != nil {
				w.logger.Error("staging file", zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// handleEvent stages the file named by event if it is watched and its
// content changed. It reports the entry and whether anything was staged.
func (w *Watcher) handleEvent(event fsnotify.Event) (index.Entry, bool, error) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return index.Entry{}, false, nil
	}

	path, ok := w.files[filepath.Clean(event.Name)]
	if !ok {
		return index.Entry{}, false, nil
	}

	content, err := os.ReadFile(event.Name)
	if err != nil {
		// Gone again before we could read it; the next event will tell.
		w.logger.Debug("skipping unreadable file", zap.String("file", event.Name), zap.Error(err))
		return index.Entry{}, false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.stager.Hash(content)
	if w.last[path] == d {
		return index.Entry{}, false, nil
	}

	entry, err := w.stager.Stage(path, content)
	if err != nil {
		return index.Entry{}, false, err
	}
	w.last[path] = entry.Digest

	w.logger.Info("staged", zap.String("path", path), zap.String("digest", entry.Digest.String()))
	if w.OnStage != nil {
		w.OnStage(entry)
	}
	return entry, true, nil
}
