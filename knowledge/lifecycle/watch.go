//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"trpc.group/trpc-go/trpc-rag-go/log"
)

// DefaultDebounce is the default quiet period Watch waits for after the last
// change before refreshing.
const DefaultDebounce = 2 * time.Second

// Watch refreshes the index whenever files of the document directory change,
// once the directory has been quiet for debounce. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !m.relevant(event) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("document watcher: %v", err)
		case <-timer.C:
			m.Invalidate()
			if _, err := m.Index(ctx); err != nil {
				log.Errorf("document watcher refresh: %v", err)
			}
		}
	}
}

func (m *Manager) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := filepath.Rel(m.dir, event.Name)
	if err != nil {
		return false
	}
	return m.tracker.Match(filepath.ToSlash(rel))
}
