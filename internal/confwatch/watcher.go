// Package confwatch reloads Jenkins connection settings when the
// configuration file changes on disk.
package confwatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is called after a settled burst of change events on the
// watched file. Returning an error leaves the previous configuration in
// effect; the watcher keeps running.
type ReloadFunc func() error

const debounce = 300 * time.Millisecond

// Watch starts an fsnotify watcher on the config file's parent directory
// and processes change events until ctx is cancelled, calling reload after
// each debounced change to the file itself.
//
// The parent directory is watched rather than the file because most
// editors save via rename, which drops a watch held on the old inode.
func Watch(ctx context.Context, path string, logger *slog.Logger, reload ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("confwatch: started", slog.String("path", abs))

	// reloadTimer debounces editor save bursts into one reload.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(debounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("confwatch: stopped")
			return nil

		case <-reloadCh:
			if reloadErr := reload(); reloadErr != nil {
				logger.Warn("confwatch: reload failed, keeping previous configuration",
					slog.String("error", reloadErr.Error()))
				continue
			}
			logger.Info("confwatch: configuration reloaded", slog.String("path", abs))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("confwatch: change detected", slog.String("op", ev.Op.String()))
			scheduleReload()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("confwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}
