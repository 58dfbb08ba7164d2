// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tutor starts the adaptive tutoring API server.
//
// Usage:
//
//	go run ./cmd/tutor
//	go run ./cmd/tutor -port 9090 -debug
//	go run ./cmd/tutor -config ./tutor.yaml
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8086/v1/tutor/health
//
//	# Start a session
//	curl -X POST http://localhost:8086/v1/tutor/sessions \
//	  -H "Content-Type: application/json" \
//	  -d '{"student": {"name": "Alex", "grade_level": "7"}, "goal": {"topic": "fractions"}}'
//
//	# Answer the question
//	curl -X POST http://localhost:8086/v1/tutor/sessions/SESSION_ID/turns \
//	  -H "Content-Type: application/json" \
//	  -d '{"answer": "4"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/tutor"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agent/nodes"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
	"github.com/AleutianAI/AleutianMentor/services/tutor/config"
	"github.com/AleutianAI/AleutianMentor/services/tutor/joblock"
	"github.com/AleutianAI/AleutianMentor/services/tutor/plan"
	"github.com/AleutianAI/AleutianMentor/services/tutor/storage/badger"
	"github.com/AleutianAI/AleutianMentor/services/tutor/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	dataPath := flag.String("data", "", "BadgerDB directory (overrides config)")
	flag.Parse()

	setupLogging(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Config load failed", "error", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if *dataPath != "" {
		cfg.Storage.Path = *dataPath
	}

	if err := run(cfg); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.TutorConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.Meter("tutor"))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Storage
	dbCfg := badger.DefaultConfig()
	dbCfg.Path = cfg.Storage.Path
	dbCfg.InMemory = cfg.Storage.InMemory
	db, err := badger.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Storage close failed", "error", err)
		}
	}()

	// Model backend
	client, err := buildClient(cfg.Backend)
	if err != nil {
		return fmt.Errorf("init model backend: %w", err)
	}
	client = &instrumentedClient{inner: client, metrics: metrics}

	// Tutoring engine
	logs := agentlog.NewStore()
	deps := &nodes.Dependencies{LLM: client, Logs: logs}

	if cfg.Prompts.Dir != "" {
		pack, err := config.NewPromptPack(cfg.Prompts.Dir)
		if err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		deps.Prompts = pack
		if cfg.Prompts.HotReload {
			go func() {
				if err := pack.Watch(ctx); err != nil {
					slog.Warn("Prompt watch stopped", "error", err)
				}
			}()
		}
	}

	registry := nodes.RegisterAll(agent.NewNodeRegistry())

	sessionCfg := &agent.SessionConfig{
		TurnTimeout:  time.Duration(cfg.Session.TurnTimeoutSeconds) * time.Second,
		EMAAlpha:     cfg.Session.EMAAlpha,
		LearningRate: cfg.Session.LearningRate,
	}

	graph := agent.NewTutorGraph(
		agent.WithNodeRegistry(registry),
		agent.WithNodeDependencies(deps),
		agent.WithSessionConfig(sessionCfg),
		agent.WithSessionRepository(badger.NewSessionRepository(db)),
		agent.WithMaxConcurrentTurns(cfg.Session.MaxConcurrentTurns),
	)

	// Plan workflow
	workflow := plan.NewWorkflow(plan.NewStructuredCaller(client, plan.WithCallLogs(logs)))

	// Background jobs: workers get their own store values through the
	// factory, never the request path's.
	jobStore := badger.NewJobStore(db)
	jobService := joblock.NewService(jobStore)

	pool := joblock.NewPool(badger.NewJobStoreFactory(db), int64(cfg.Jobs.MaxWorkers))
	defer pool.Close()

	reaper := joblock.NewReaper(jobStore,
		joblock.WithHeartbeatTTL(time.Duration(cfg.Jobs.HeartbeatTTLSeconds)*time.Second),
		joblock.WithReapInterval(time.Duration(cfg.Jobs.ReapIntervalSeconds)*time.Second),
		joblock.WithOnReaped(func(ctx context.Context, count int) {
			metrics.JobsReaped.Add(ctx, int64(count))
		}),
	)
	go reaper.Run(ctx)

	// HTTP
	handlers := tutor.NewHandlers(graph, logs, workflow, jobService, pool,
		tutor.WithMetrics(metrics))
	router := tutor.NewRouter(handlers, cfg.Server.Debug)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Tutor server listening",
			"addr", addr,
			"backend", cfg.Backend.Type,
			"storage", cfg.Storage.Path,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                    ALEUTIAN MENTOR                        ║
╠═══════════════════════════════════════════════════════════╣
║  Quick Start:                                             ║
║    # Health check                                         ║
║    curl http://localhost:%d/v1/tutor/health             ║
║                                                           ║
║    # Start a session                                      ║
║    curl -X POST http://localhost:%d/v1/tutor/sessions \  ║
║      -d '{"student":{"name":"Alex","grade_level":"7"},    ║
║           "goal":{"topic":"fractions"}}'                  ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}

// setupLogging installs the process logger: human-readable on a
// terminal, JSON otherwise.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildClient constructs the model client from the backend config.
//
// The openai and ollama clients read their settings from the
// environment, so config values are exported before construction. The
// mock backend serves deterministic outputs for local development
// without a model.
func buildClient(cfg config.BackendConfig) (llm.LLMClient, error) {
	var client llm.LLMClient
	var err error

	switch cfg.Type {
	case "openai":
		if cfg.Model != "" {
			setEnvDefault("OPENAI_MODEL", cfg.Model)
		}
		client, err = llm.NewOpenAIClient()
	case "ollama":
		if cfg.BaseURL != "" {
			setEnvDefault("OLLAMA_BASE_URL", cfg.BaseURL)
		}
		if cfg.Model != "" {
			setEnvDefault("OLLAMA_MODEL", cfg.Model)
		}
		client, err = llm.NewOllamaClient()
		if err != nil {
			slog.Warn("Ollama unavailable, agent endpoints will use mock mode", "error", err)
			client, err = newScriptedClient(), nil
		}
	case "mock":
		client = newScriptedClient()
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		client = llm.NewRateLimitedClient(client, float64(cfg.RequestsPerMinute)/60.0, cfg.RequestsPerMinute)
	}
	return client, nil
}

func setEnvDefault(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

// instrumentedClient records call count and duration around the inner
// client.
type instrumentedClient struct {
	inner   llm.LLMClient
	metrics *telemetry.Metrics
}

func (c *instrumentedClient) Model() string {
	return c.inner.Model()
}

func (c *instrumentedClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	start := time.Now()
	out, err := c.inner.Generate(ctx, prompt, params)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.LLMCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", c.inner.Model()),
		attribute.String("status", status),
	))
	c.metrics.LLMCallDuration.Record(ctx, time.Since(start).Seconds())
	return out, err
}

// scriptedClient answers every prompt with a fixed, schema-valid output
// chosen by prompt shape. It keeps the full turn pipeline exercisable
// without a model backend.
type scriptedClient struct{}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{}
}

func (s *scriptedClient) Model() string {
	return "scripted"
}

func (s *scriptedClient) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "grading a student's answer"):
		return `{"score": 0.9, "rationale": "Scripted grade.", "labels": [], "confidence": 0.9}`, nil
	case strings.Contains(prompt, "answered incorrectly"):
		return `{"message": "Let's slow down and look at it another way. Ready to retry?", "expected_answer_form": "free_text"}`, nil
	case strings.Contains(prompt, "curriculum planner"):
		return `{"steps": [{"step_id": "s1", "type": "explain", "concept": "basics"}, {"step_id": "s2", "type": "check", "concept": "basics"}], "rationale": "scripted plan"}`, nil
	case strings.Contains(prompt, "evaluating a student's progress"):
		return `{"route": "continue", "feedback": "Scripted evaluation.", "step_completed": true, "answer_correct": true}`, nil
	case strings.Contains(prompt, "executing one step"):
		return `{"message": "Scripted step content. What do you think?", "expected_answer_form": "free_text"}`, nil
	default:
		return `{"message": "Scripted lesson content. Can you restate it in your own words?", "expected_answer_form": "free_text"}`, nil
	}
}
