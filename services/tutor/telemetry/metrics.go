// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the tutor service.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Turn Metrics ---

	// TurnsTotal counts processed turns by outcome (committed, fallback).
	TurnsTotal metric.Int64Counter

	// TurnDuration records turn duration in seconds.
	TurnDuration metric.Float64Histogram

	// SessionsActive tracks open tutoring sessions.
	SessionsActive metric.Int64UpDownCounter

	// MasteryScore records session mastery at commit time.
	MasteryScore metric.Float64Histogram

	// --- Model Metrics ---

	// LLMCallsTotal counts model calls by agent and status.
	LLMCallsTotal metric.Int64Counter

	// LLMCallDuration records model call duration in seconds.
	LLMCallDuration metric.Float64Histogram

	// --- Plan Metrics ---

	// ReplansTotal counts plan revisions.
	ReplansTotal metric.Int64Counter

	// --- Job Metrics ---

	// JobsTotal counts background jobs by terminal status.
	JobsTotal metric.Int64Counter

	// JobsReaped counts jobs reclaimed by the heartbeat reaper.
	JobsReaped metric.Int64Counter
}

// NewMetrics registers all tutor metrics with the provided meter.
//
// Inputs:
//
//	meter - The OTel meter to register instruments on.
//
// Outputs:
//
//	*Metrics - The initialized instruments.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.TurnsTotal, err = meter.Int64Counter(
		"tutor_turns_total",
		metric.WithDescription("Processed tutoring turns by outcome"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_turns_total: %w", err)
	}

	if m.TurnDuration, err = meter.Float64Histogram(
		"tutor_turn_duration_seconds",
		metric.WithDescription("Turn duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_turn_duration_seconds: %w", err)
	}

	if m.SessionsActive, err = meter.Int64UpDownCounter(
		"tutor_sessions_active",
		metric.WithDescription("Open tutoring sessions"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_sessions_active: %w", err)
	}

	if m.MasteryScore, err = meter.Float64Histogram(
		"tutor_mastery_score",
		metric.WithDescription("Session mastery score at commit"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_mastery_score: %w", err)
	}

	if m.LLMCallsTotal, err = meter.Int64Counter(
		"tutor_llm_calls_total",
		metric.WithDescription("Model calls by agent and status"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_llm_calls_total: %w", err)
	}

	if m.LLMCallDuration, err = meter.Float64Histogram(
		"tutor_llm_call_duration_seconds",
		metric.WithDescription("Model call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_llm_call_duration_seconds: %w", err)
	}

	if m.ReplansTotal, err = meter.Int64Counter(
		"tutor_replans_total",
		metric.WithDescription("Study plan revisions"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_replans_total: %w", err)
	}

	if m.JobsTotal, err = meter.Int64Counter(
		"tutor_jobs_total",
		metric.WithDescription("Background jobs by terminal status"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_jobs_total: %w", err)
	}

	if m.JobsReaped, err = meter.Int64Counter(
		"tutor_jobs_reaped_total",
		metric.WithDescription("Jobs reclaimed by the heartbeat reaper"),
	); err != nil {
		return nil, fmt.Errorf("register tutor_jobs_reaped_total: %w", err)
	}

	return m, nil
}
