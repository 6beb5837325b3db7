package repo

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"sit/internal/errors"
	"sit/internal/scan"
)

// Watch starts a best-effort filesystem watcher over the repository
// root and returns a channel that receives a notification whenever a
// filesystem event could change what Status would report. It is a hint
// only: Watch never decides the working tree is dirty itself, and a
// caller must still call Status to get the authoritative answer. The
// channel is closed and the underlying watcher torn down when ctx is
// canceled. Per §5's degradation rule, a failure to start the watcher
// returns an error rather than degrading silently — every other
// Repository method keeps working regardless.
func (r *Repository) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.IO("starting filesystem watcher", err)
	}

	if err := addWatchDirs(watcher, r.root, r.config); err != nil {
		watcher.Close()
		return nil, errors.IO("watching repository tree", err)
	}

	changed := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(changed)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				relPath, relErr := filepath.Rel(r.root, event.Name)
				if relErr == nil && r.cache != nil {
					r.cache.Invalidate(filepath.ToSlash(relPath))
				}
				if event.Op&fsnotify.Create != 0 {
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				notify(changed)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if r.logger != nil {
					r.logger.Warn("watch error", zap.Error(werr))
				}
			}
		}
	}()

	return changed, nil
}

// notify sends on changed without blocking: a pending notification
// already covers whatever event arrives next, since the caller is
// expected to re-run Status rather than consume one event per change.
func notify(changed chan<- struct{}) {
	select {
	case changed <- struct{}{}:
	default:
	}
}

// addWatchDirs registers watcher on root and every subdirectory not
// excluded by cfg's ignore rules, mirroring the Scanner's own traversal
// so Watch never fires on changes under directories the Differ would
// never look at anyway.
func addWatchDirs(watcher *fsnotify.Watcher, root string, cfg scan.Config) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && cfg.ShouldIgnoreName(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
