// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Store whenever its rule definition file changes.
//
// # Description
//
// Watches the file's parent directory (editors commonly rename-replace
// rather than write in place) and debounces bursts of events into a
// single reload. A reload that fails validation is logged and the
// previously active set stays in service.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads are serialized by the watch goroutine.
type Watcher struct {
	store    *Store
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher for the given definition file.
//
// Inputs:
//
//	store - The Store to reload on changes.
//	path - The rule definition file to track.
//	logger - Destination for reload outcomes. Nil uses slog.Default.
//
// Outputs:
//
//	*Watcher - Ready watcher (call Start to begin).
//	error - Non-nil if the underlying file watcher could not be created.
func NewWatcher(store *Store, path string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		store:    store,
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: 250 * time.Millisecond,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns after the watch is registered; the
// reload loop runs in a background goroutine until Stop is called or the
// context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// loop consumes events, debounces them, and drives reloads.
func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	reload := func() {
		if err := w.store.ReloadFile(w.path); err != nil {
			w.logger.Warn("rule reload rejected, keeping previous set",
				"path", w.path,
				"error", err,
			)
			return
		}
		w.logger.Info("rule reload applied",
			"path", w.path,
			"version", w.store.Current().Version(),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule file watch error", "path", w.path, "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			reload()
		}
	}
}
