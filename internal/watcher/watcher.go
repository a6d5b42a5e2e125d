// Package watcher reports changes made to an FS ledger directory, including
// writes by other processes sharing it.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/parkwatch/internal/checksum"
	"github.com/starford/parkwatch/internal/kv"
)

// ChangeCallback is called once per changed key after the debounce window.
type ChangeCallback func(key string)

// DefaultDebounce is how long changes are collected before cb is called.
const DefaultDebounce = 150 * time.Millisecond

// Watch watches dir until ctx is cancelled. Key files whose content did not
// change (same checksum) are not reported; temp files are ignored.
func Watch(ctx context.Context, dir string, debounce time.Duration, logger *slog.Logger, cb ChangeCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	sums := snapshot(dir, logger)
	logger.Info("watcher: started", slog.String("dir", dir), slog.Int("keys", len(sums)))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(key string) {
		pending[key] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for key := range pending {
				if cb != nil {
					cb(key)
				}
				delete(pending, key)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, isKey := kv.KeyFromPath(ev.Name)
			if !isKey {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := os.ReadFile(ev.Name)
				if readErr != nil {
					if !errors.Is(readErr, fs.ErrNotExist) {
						logger.Warn("watcher: read failed", slog.String("key", key), slog.String("error", readErr.Error()))
					}
					continue
				}
				if len(data) == 0 {
					// Truncated mid-write; the content arrives with the next event.
					continue
				}
				sum := checksum.Sum(data)
				if sums[key] == sum {
					continue
				}
				sums[key] = sum
				logger.Debug("watcher: key changed", slog.String("key", key))
				schedule(key)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if _, known := sums[key]; !known {
					continue
				}
				delete(sums, key)
				logger.Debug("watcher: key removed", slog.String("key", key))
				schedule(key)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// snapshot records the checksum of every key file currently in dir.
func snapshot(dir string, logger *slog.Logger) map[string]string {
	sums := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("watcher: snapshot failed", slog.String("error", err.Error()))
		return sums
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := kv.KeyFromPath(e.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		sums[key] = checksum.Sum(data)
	}
	return sums
}
