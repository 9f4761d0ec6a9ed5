package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/timers"
)

const reloadKey = "config:reload"

// Watch reloads path whenever it changes and hands the new config to
// onChange. Bursts of writes are debounced. It returns once the watcher is
// running; the watch stops when ctx is done.
func Watch(ctx context.Context, path string, t *timers.Timers, debounce time.Duration, logger *slog.Logger, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors and SaveTo replace the file by rename.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				t.Cancel(reloadKey)
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				t.Schedule(reloadKey, debounce, func() {
					cfg, err := LoadFrom(absPath)
					if err != nil {
						logger.Warn("config reload failed", "path", absPath, "error", err)
						return
					}
					logger.Info("config reloaded", "path", absPath)
					onChange(cfg)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	logger.Debug("watching config", "path", absPath)
	return nil
}
