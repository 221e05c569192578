// Package watch re-runs a report whenever its input file changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce absorbs the burst of events an editor or exporter emits
// for a single save.
const DefaultDebounce = 300 * time.Millisecond

// Options configures File.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// File calls run each time path is written, created or renamed into place.
// It watches the parent directory so atomic saves (write temp, rename) are
// seen. A failing run is logged and watching continues. File blocks until
// ctx is cancelled.
func File(ctx context.Context, path string, opt Options, run func(context.Context) error) error {
	if opt.Debounce <= 0 {
		opt.Debounce = DefaultDebounce
	}
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("watch: waiting for changes", "path", abs)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("watch: event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(opt.Debounce)
			} else {
				timer.Reset(opt.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info("watch: change detected, re-running", "path", abs)
			if err := run(ctx); err != nil {
				log.Error("watch: run failed", "path", abs, "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch: watcher error", "err", err)
		}
	}
}
