// Package watcher reloads the dashboard configuration file when it changes
// on disk, so operators can retune polling intervals and log levels without
// restarting the process.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceDelay coalesces the burst of events an editor emits on save.
const debounceDelay = 250 * time.Millisecond

// ReloadFunc is invoked with the config path after the file settles.
type ReloadFunc func(path string)

// ConfigWatcher watches a single config file for changes.
type ConfigWatcher struct {
	path    string
	reload  ReloadFunc
	log     *logrus.Logger
	watcher *fsnotify.Watcher
}

// New creates a watcher for path. The parent directory is watched rather
// than the file itself so atomic rename-into-place saves are seen.
func New(path string, reload ReloadFunc, log *logrus.Logger) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &ConfigWatcher{
		path:    path,
		reload:  reload,
		log:     log,
		watcher: fsw,
	}, nil
}

// Start watches until ctx is cancelled. Blocking; run in a goroutine.
func (cw *ConfigWatcher) Start(ctx context.Context) {
	cw.log.WithField("path", cw.path).Info("Watching config file")

	var timer *time.Timer
	var fired <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			cw.log.Info("Config watcher stopping")
			cw.watcher.Close()
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				fired = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceDelay)
			}

		case <-fired:
			timer = nil
			fired = nil
			cw.log.WithField("path", cw.path).Info("Config file changed, reloading")
			cw.reload(cw.path)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.WithError(err).Error("Config watcher error")
		}
	}
}
