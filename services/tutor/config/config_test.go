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
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8086 {
		t.Errorf("Port = %d, want 8086", cfg.Server.Port)
	}
	if cfg.Backend.Type != "ollama" {
		t.Errorf("Backend = %q, want ollama", cfg.Backend.Type)
	}
	if cfg.Session.EMAAlpha != 0.4 {
		t.Errorf("EMAAlpha = %v, want 0.4", cfg.Session.EMAAlpha)
	}
	if cfg.Session.LearningRate != 0.2 {
		t.Errorf("LearningRate = %v, want 0.2", cfg.Session.LearningRate)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jobs.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want default 4", cfg.Jobs.MaxWorkers)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	doc := `
server:
  port: 9000
  debug: true
model_backend:
  type: openai
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
session:
  turn_timeout_seconds: 30
  ema_alpha: 0.5
  learning_rate: 0.1
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 || !cfg.Server.Debug {
		t.Errorf("Server = %+v, want port 9000 debug", cfg.Server)
	}
	if cfg.Backend.Type != "openai" || cfg.Backend.Model != "gpt-4o-mini" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Session.EMAAlpha != 0.5 {
		t.Errorf("EMAAlpha = %v, want 0.5", cfg.Session.EMAAlpha)
	}
	// Values the file does not mention keep their defaults.
	if cfg.Jobs.HeartbeatTTLSeconds != 120 {
		t.Errorf("HeartbeatTTLSeconds = %d, want default 120", cfg.Jobs.HeartbeatTTLSeconds)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TUTOR_PORT", "9100")
	t.Setenv("TUTOR_BACKEND", "mock")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Backend.Type != "mock" {
		t.Errorf("Backend = %q, want mock", cfg.Backend.Type)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TutorConfig)
		wantErr bool
	}{
		{"defaults valid", func(*TutorConfig) {}, false},
		{"zero port", func(c *TutorConfig) { c.Server.Port = 0 }, true},
		{"port too high", func(c *TutorConfig) { c.Server.Port = 70000 }, true},
		{"no storage path", func(c *TutorConfig) { c.Storage.Path = "" }, true},
		{"in-memory without path", func(c *TutorConfig) { c.Storage.Path = ""; c.Storage.InMemory = true }, false},
		{"unknown backend", func(c *TutorConfig) { c.Backend.Type = "bard" }, true},
		{"alpha too high", func(c *TutorConfig) { c.Session.EMAAlpha = 1.5 }, true},
		{"alpha zero", func(c *TutorConfig) { c.Session.EMAAlpha = 0 }, true},
		{"learning rate negative", func(c *TutorConfig) { c.Session.LearningRate = -0.1 }, true},
		{"zero timeout", func(c *TutorConfig) { c.Session.TurnTimeoutSeconds = 0 }, true},
		{"zero workers", func(c *TutorConfig) { c.Jobs.MaxWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPromptPack_LoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tutor_present.prompt"), []byte("Teach %s."), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	pack, err := NewPromptPack(dir)
	if err != nil {
		t.Fatalf("NewPromptPack: %v", err)
	}

	text, ok := pack.Prompt("tutor_present")
	if !ok || text != "Teach %s." {
		t.Errorf("Prompt = %q, %v", text, ok)
	}
	if _, ok := pack.Prompt("notes"); ok {
		t.Error("non-prompt files must not be loaded")
	}
	if _, ok := pack.Prompt("missing"); ok {
		t.Error("missing prompt must report false")
	}
}

func TestPromptPack_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutor_check.prompt")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	pack, err := NewPromptPack(dir)
	if err != nil {
		t.Fatalf("NewPromptPack: %v", err)
	}

	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("rewrite prompt: %v", err)
	}
	if err := pack.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	text, _ := pack.Prompt("tutor_check")
	if text != "v2" {
		t.Errorf("Prompt after reload = %q, want v2", text)
	}
}

func TestPromptPack_MissingDir(t *testing.T) {
	if _, err := NewPromptPack(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
