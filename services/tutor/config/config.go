// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the tutor service configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TutorConfig is the full service configuration.
type TutorConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Backend BackendConfig `yaml:"model_backend"`
	Session SessionConfig `yaml:"session"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Prompts PromptsConfig `yaml:"prompts"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port  int  `yaml:"port"`
	Debug bool `yaml:"debug"`
}

// StorageConfig controls the embedded database.
type StorageConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory disables disk persistence. Sessions and jobs are lost
	// on restart.
	InMemory bool `yaml:"in_memory"`
}

// BackendConfig selects the model backend.
type BackendConfig struct {
	// Type is "openai", "ollama", or "mock".
	Type string `yaml:"type"`

	// BaseURL overrides the backend endpoint. Required for ollama.
	BaseURL string `yaml:"base_url,omitempty"`

	// Model is the model name passed to the backend.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// RequestsPerMinute caps outbound model calls. 0 disables the cap.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// SessionConfig tunes the tutoring loop.
type SessionConfig struct {
	// TurnTimeoutSeconds bounds one turn end to end.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`

	// EMAAlpha weights new grading scores in the session mastery
	// estimate (0.0-1.0).
	EMAAlpha float64 `yaml:"ema_alpha"`

	// LearningRate drives per-concept mastery updates (0.0-1.0).
	LearningRate float64 `yaml:"learning_rate"`

	// MaxConcurrentTurns bounds turns in flight across sessions.
	// 0 means unbounded.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`
}

// JobsConfig tunes background job execution.
type JobsConfig struct {
	// MaxWorkers bounds concurrent background jobs.
	MaxWorkers int `yaml:"max_workers"`

	// HeartbeatTTLSeconds is how stale a running job's heartbeat may
	// be before the reaper reclaims it.
	HeartbeatTTLSeconds int `yaml:"heartbeat_ttl_seconds"`

	// ReapIntervalSeconds is how often the reaper scans.
	ReapIntervalSeconds int `yaml:"reap_interval_seconds"`
}

// PromptsConfig controls the prompt pack.
type PromptsConfig struct {
	// Dir is a directory of *.prompt files overriding the built-in
	// prompts. Empty means built-ins only.
	Dir string `yaml:"dir,omitempty"`

	// HotReload re-reads prompt files when they change on disk.
	HotReload bool `yaml:"hot_reload"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() TutorConfig {
	return TutorConfig{
		Server: ServerConfig{
			Port: 8086,
		},
		Storage: StorageConfig{
			Path: "./data/tutor",
		},
		Backend: BackendConfig{
			Type:              "ollama",
			BaseURL:           "http://localhost:11434",
			Model:             "llama3",
			RequestsPerMinute: 60,
		},
		Session: SessionConfig{
			TurnTimeoutSeconds: 60,
			EMAAlpha:           0.4,
			LearningRate:       0.2,
			MaxConcurrentTurns: 32,
		},
		Jobs: JobsConfig{
			MaxWorkers:          4,
			HeartbeatTTLSeconds: 120,
			ReapIntervalSeconds: 30,
		},
		Prompts: PromptsConfig{
			HotReload: true,
		},
	}
}

// Load reads the configuration file and applies environment overrides.
//
// Description:
//
//	A missing file is not an error: defaults are used. Environment
//	variables override file values; see applyEnv for the names.
//
// Inputs:
//
//	path - The YAML configuration file. May be empty.
//
// Outputs:
//
//	TutorConfig - The effective configuration.
//	error - Non-nil on unreadable or malformed files, or on invalid
//	effective values.
func Load(path string) (TutorConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return TutorConfig{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return TutorConfig{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return TutorConfig{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func applyEnv(cfg *TutorConfig) {
	if v := os.Getenv("TUTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TUTOR_DEBUG"); v != "" {
		cfg.Server.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("TUTOR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TUTOR_BACKEND"); v != "" {
		cfg.Backend.Type = v
	}
	if v := os.Getenv("TUTOR_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("TUTOR_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("TUTOR_PROMPTS_DIR"); v != "" {
		cfg.Prompts.Dir = v
	}
}

// Validate checks the effective configuration.
func (c TutorConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required unless in_memory is set")
	}
	switch c.Backend.Type {
	case "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unknown model backend %q", c.Backend.Type)
	}
	if c.Session.EMAAlpha <= 0 || c.Session.EMAAlpha > 1 {
		return fmt.Errorf("ema_alpha %.2f out of range (0, 1]", c.Session.EMAAlpha)
	}
	if c.Session.LearningRate <= 0 || c.Session.LearningRate > 1 {
		return fmt.Errorf("learning_rate %.2f out of range (0, 1]", c.Session.LearningRate)
	}
	if c.Session.TurnTimeoutSeconds <= 0 {
		return fmt.Errorf("turn_timeout_seconds must be positive")
	}
	if c.Jobs.MaxWorkers <= 0 {
		return fmt.Errorf("jobs max_workers must be positive")
	}
	return nil
}
