// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// promptExt is the file extension for prompt overrides.
const promptExt = ".prompt"

// PromptPack serves prompt templates loaded from a directory.
//
// Description:
//
//	Each <name>.prompt file in the directory overrides the built-in
//	prompt of the same name. Watch reloads the pack when files change,
//	so prompts can be tuned without a restart.
//
// Thread Safety: PromptPack is safe for concurrent use.
type PromptPack struct {
	dir string

	mu      sync.RWMutex
	prompts map[string]string
}

// NewPromptPack loads the prompt files under dir.
//
// Inputs:
//
//	dir - The directory of *.prompt files. Must exist.
//
// Outputs:
//
//	*PromptPack - The loaded pack.
//	error - Non-nil if the directory cannot be read.
func NewPromptPack(dir string) (*PromptPack, error) {
	p := &PromptPack{dir: dir, prompts: make(map[string]string)}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Prompt returns the template registered under name.
//
// Thread Safety: This method is safe for concurrent use.
func (p *PromptPack) Prompt(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	text, ok := p.prompts[name]
	return text, ok
}

// Names returns the loaded prompt names.
func (p *PromptPack) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.prompts))
	for name := range p.prompts {
		names = append(names, name)
	}
	return names
}

// Reload re-reads every prompt file in the directory.
//
// Description:
//
//	The pack is replaced atomically: a failed reload leaves the
//	previous prompts in place.
//
// Thread Safety: This method is safe for concurrent use.
func (p *PromptPack) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("read prompt directory %s: %w", p.dir, err)
	}

	loaded := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), promptExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), promptExt)
		loaded[name] = string(data)
	}

	p.mu.Lock()
	p.prompts = loaded
	p.mu.Unlock()

	slog.Debug("Prompt pack loaded",
		slog.String("dir", p.dir),
		slog.Int("count", len(loaded)),
	)
	return nil
}

// Watch reloads the pack when prompt files change.
//
// Description:
//
//	Blocks until the context is cancelled. Should be run in a
//	goroutine. Reload failures are logged and the previous prompts
//	stay active.
//
// Inputs:
//
//	ctx - Context for cancellation.
//
// Outputs:
//
//	error - Non-nil if the watcher cannot be created.
func (p *PromptPack) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.dir); err != nil {
		return fmt.Errorf("watch prompt directory %s: %w", p.dir, err)
	}

	slog.Info("Watching prompt directory", slog.String("dir", p.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, promptExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.Reload(); err != nil {
				slog.Warn("Prompt reload failed",
					slog.String("dir", p.dir),
					slog.String("error", err.Error()),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Prompt watcher error", slog.String("error", err.Error()))
		}
	}
}
