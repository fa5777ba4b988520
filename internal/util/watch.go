package util

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/isaac-art/dinamap/internal/logger"
)

// Watch reloads the config at path whenever the file is written and passes
// it to onChange. A reload that fails to parse is logged and skipped. Watch
// returns when ctx is cancelled.
func Watch(ctx context.Context, path string, log *logger.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	log.Infof("Watching config %s for changes", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically show up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := rewatch(watcher, path); err != nil {
				log.Errorf("Hot reload stopped: %v", err)
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				log.Errorf("Config reload failed, keeping previous config: %v", err)
				continue
			}
			log.Infof("Config reloaded from %s", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("Config watcher error: %v", err)
		}
	}
}

// rewatch adds path to the watcher again. An atomic save replaces the file,
// which drops the old watch.
func rewatch(watcher *fsnotify.Watcher, path string) error {
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}
