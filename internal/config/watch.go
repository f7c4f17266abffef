package config

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and calls onChange each time its
// effective content changes. It blocks until ctx is cancelled.
//
// A rewrite that fails to load (invalid YAML, failed validation) is logged
// and skipped; the previously active config stays in force. Editors fire
// several events per save, so a reload that yields a config equal to the
// last one delivered is dropped rather than re-announced.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	// Changes are announced relative to what is on disk now, not relative
	// to whatever the caller loaded earlier.
	last, err := Load(path)
	if err != nil {
		return err
	}

	slog.Info("config: watching", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves replace the file, so Create counts as a change
			// and the path must be re-added afterwards.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping active config",
					"path", path, "err", err)
				continue
			}
			_ = watcher.Add(path)

			if reflect.DeepEqual(cfg, last) {
				continue
			}
			last = cfg

			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watch error", "err", err)
		}
	}
}
