// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tutor exposes the tutoring engine over HTTP.
package tutor

import (
	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
)

// CreateSessionRequest is the body for POST /v1/tutor/sessions.
type CreateSessionRequest struct {
	// Student is the learner profile.
	Student agent.Student `json:"student"`

	// Goal is the learning objective. Topic is required.
	Goal agent.Goal `json:"goal" binding:"required"`
}

// TurnRequest is the body for POST /v1/tutor/sessions/:id/turns and
// POST /v1/tutor/plans/:id/turns.
type TurnRequest struct {
	// Answer is the student's message.
	Answer string `json:"answer" binding:"required"`
}

// CreatePlanRequest is the body for POST /v1/tutor/plans.
type CreatePlanRequest struct {
	// Student is the learner profile.
	Student agent.Student `json:"student"`

	// Goal is the learning objective. Topic is required.
	Goal agent.Goal `json:"goal" binding:"required"`
}

// CreateJobRequest is the body for POST /v1/tutor/jobs.
type CreateJobRequest struct {
	// Kind selects the job body. Currently "content_ingest".
	Kind string `json:"kind" binding:"required"`
}

// LogsResponse is the body for GET /v1/tutor/sessions/:id/logs.
type LogsResponse struct {
	// SessionID is the inspected session.
	SessionID string `json:"session_id"`

	// Entries are the matching log records, oldest first.
	Entries []agentlog.Entry `json:"entries"`
}

// HealthResponse is the body for GET /v1/tutor/health.
type HealthResponse struct {
	// Status is "ok" when the service is serving.
	Status string `json:"status"`

	// ActiveSessions is the number of open tutoring sessions.
	ActiveSessions int `json:"active_sessions"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`
}
