package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"aep/pkg/logx"
)

const watchDebounce = 500 * time.Millisecond

// watch reloads the registry when manifests under the events root change.
// fsnotify does not recurse, so the root and every job folder are watched
// individually and the set is refreshed after each reload.
func (e *Engine) watch(ctx context.Context) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := e.addWatches(w); err != nil {
		_ = w.Close()
		return nil, err
	}

	go func() {
		debounce := time.NewTimer(watchDebounce)
		if !debounce.Stop() {
			<-debounce.C
		}
		pending := false

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op == fsnotify.Chmod {
					continue
				}
				// Collapse editor write bursts into one reload.
				if pending {
					debounce.Reset(watchDebounce)
					continue
				}
				pending = true
				debounce.Reset(watchDebounce)
				e.log.Debug("events root changed",
					logx.String("path", ev.Name),
					logx.String("op", ev.Op.String()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				e.log.Warn("events watch error", logx.Err(err))
			case <-debounce.C:
				pending = false
				select {
				case e.cmds <- command{kind: cmdReload}:
				default:
					// Loop busy with a full command queue; the next
					// filesystem event tries again.
				}
				if err := e.addWatches(w); err != nil {
					e.log.Warn("events watch refresh failed", logx.Err(err))
				}
			}
		}
	}()

	return func() { _ = w.Close() }, nil
}

func (e *Engine) addWatches(w *fsnotify.Watcher) error {
	if err := w.Add(e.cfg.Root); err != nil {
		return err
	}
	entries, err := os.ReadDir(e.cfg.Root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Re-adding an already watched directory is a no-op.
		if err := w.Add(filepath.Join(e.cfg.Root, entry.Name())); err != nil {
			e.log.Debug("watch add failed",
				logx.String("folder", entry.Name()), logx.Err(err))
		}
	}
	return nil
}
