package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchDebounce is how long a file must stay quiet before it is reloaded.
// Editors and encoders tend to write a file in several steps.
const watchDebounce = 100 * time.Millisecond

// fileWatcher signals when a single file changes. The file's directory is
// watched instead of the file, so replacing the file by renaming over it is
// also seen.
type fileWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan struct{}
	done     chan struct{}
	log      *slog.Logger
}

func watchFile(ctx context.Context, path string, debounce time.Duration, log *slog.Logger) (*fileWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to watch directory")
	}

	w := &fileWatcher{
		path:     path,
		debounce: debounce,
		watcher:  watcher,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		log:      log.With(slog.String("component", "watcher")),
	}

	go w.run(ctx)
	return w, nil
}

// Changes returns a channel that receives after the file has changed. Changes
// are coalesced.
func (w *fileWatcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops watching and waits for the watcher to exit.
func (w *fileWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *fileWatcher) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			w.log.LogAttrs(ctx, slog.LevelDebug, "file changed", slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.LogAttrs(ctx, slog.LevelError, "watch error", slog.Any("error", err))

		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}
