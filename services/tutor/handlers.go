// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tutor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
	"github.com/AleutianAI/AleutianMentor/services/tutor/joblock"
	"github.com/AleutianAI/AleutianMentor/services/tutor/plan"
	"github.com/AleutianAI/AleutianMentor/services/tutor/telemetry"
)

// Handlers contains the HTTP handlers for the tutor service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	graph    agent.TutorGraph
	logs     *agentlog.Store
	workflow *plan.Workflow
	jobs     *joblock.Service
	pool     *joblock.Pool
	runners  map[string]joblock.WorkerFunc
	metrics  *telemetry.Metrics
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithMetrics attaches the tutor instrument set. Nil disables metric
// recording.
func WithMetrics(m *telemetry.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// NewHandlers creates handlers over the tutoring engine.
//
// Inputs:
//
//	graph - The turn router. Must not be nil.
//	logs - The agent log store. Must not be nil.
//	workflow - The plan workflow. May be nil to disable plan routes.
//	jobs - The job lock service. May be nil to disable job routes.
//	pool - The background worker pool. May be nil to disable job routes.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlers(graph agent.TutorGraph, logs *agentlog.Store, workflow *plan.Workflow, jobs *joblock.Service, pool *joblock.Pool, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		graph:    graph,
		logs:     logs,
		workflow: workflow,
		jobs:     jobs,
		pool:     pool,
		runners: map[string]joblock.WorkerFunc{
			"content_ingest": runContentIngest,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// runContentIngest is the placeholder body for content ingestion jobs.
// It exists so the job pipeline is exercised end to end; the real
// ingestion pipeline plugs in here.
func runContentIngest(ctx context.Context, job joblock.Job) error {
	slog.Info("Content ingest job ran",
		slog.String("job_id", job.ID),
	)
	return ctx.Err()
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleCreateSession handles POST /v1/tutor/sessions.
//
// Response:
//
//	200 OK: agent.TurnResult with the opening question
//	400 Bad Request: Validation error
//	500 Internal Server Error: Processing error
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateSession")

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Goal.Topic == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Goal topic is required",
			Code:  "EMPTY_TOPIC",
		})
		return
	}

	result, err := h.graph.StartSession(c.Request.Context(), req.Student, req.Goal)
	if err != nil {
		status, code := http.StatusInternalServerError, "SESSION_ERROR"
		if errors.Is(err, agent.ErrInvalidSession) {
			status, code = http.StatusBadRequest, "INVALID_SESSION"
		}
		logger.Error("Session start failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsActive.Add(c.Request.Context(), 1)
	}

	logger.Info("Session started",
		"session_id", result.SessionID,
		"topic", req.Goal.Topic)
	c.JSON(http.StatusOK, result)
}

// HandleTurn handles POST /v1/tutor/sessions/:id/turns.
//
// Response:
//
//	200 OK: agent.TurnResult (teaching, evaluation, or fallback shape)
//	400 Bad Request: Missing answer
//	404 Not Found: Unknown session
//	409 Conflict: A turn is already in flight
//	410 Gone: Session already ended
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleTurn(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTurn")

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Answer is required",
			Code:  "EMPTY_ANSWER",
		})
		return
	}

	sessionID := c.Param("id")
	start := time.Now()
	result, err := h.graph.HandleTurn(c.Request.Context(), sessionID, req.Answer)
	if err != nil {
		status, code := http.StatusInternalServerError, "TURN_ERROR"
		switch {
		case errors.Is(err, agent.ErrEmptyAnswer):
			status, code = http.StatusBadRequest, "EMPTY_ANSWER"
		case errors.Is(err, agent.ErrSessionNotFound):
			status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
		case errors.Is(err, agent.ErrSessionInProgress):
			status, code = http.StatusConflict, "SESSION_BUSY"
		case errors.Is(err, agent.ErrSessionEnded):
			status, code = http.StatusGone, "SESSION_ENDED"
		}
		logger.Warn("Turn failed", "session_id", sessionID, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if h.metrics != nil {
		ctx := c.Request.Context()
		outcome := "committed"
		if result.Fallback {
			outcome = "fallback"
		}
		h.metrics.TurnsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("next_action", string(result.NextAction)),
		))
		h.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		if !result.Fallback {
			h.metrics.MasteryScore.Record(ctx, result.MasteryScore)
		}
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetSession handles GET /v1/tutor/sessions/:id.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.graph.GetSession(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, session.ToSnapshot())
}

// HandleCloseSession handles DELETE /v1/tutor/sessions/:id.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCloseSession(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.graph.CloseSession(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsActive.Add(c.Request.Context(), -1)
	}

	h.logs.ClearSession(sessionID)
	c.Status(http.StatusNoContent)
}

// HandleGetLogs handles GET /v1/tutor/sessions/:id/logs.
//
// Description:
//
//	Returns the session's agent log entries, optionally filtered by
//	the turn_id and agent query parameters.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetLogs(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.graph.GetSession(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	entries := h.logs.GetLogs(sessionID, agentlog.Filter{
		TurnID:    c.Query("turn_id"),
		AgentName: c.Query("agent"),
	})

	c.JSON(http.StatusOK, LogsResponse{
		SessionID: sessionID,
		Entries:   entries,
	})
}

// HandleCreatePlan handles POST /v1/tutor/plans.
//
// Response:
//
//	200 OK: plan.WorkflowResult with the first step's message
//	400 Bad Request: Validation error
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCreatePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreatePlan")

	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Goal.Topic == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Goal topic is required",
			Code:  "EMPTY_TOPIC",
		})
		return
	}

	result, err := h.workflow.Start(c.Request.Context(), req.Student, req.Goal)
	if err != nil {
		status, code := http.StatusInternalServerError, "PLAN_ERROR"
		if errors.Is(err, agent.ErrInvalidSession) {
			status, code = http.StatusBadRequest, "INVALID_SESSION"
		}
		logger.Error("Plan start failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("Plan session started",
		"session_id", result.SessionID,
		"topic", req.Goal.Topic)
	c.JSON(http.StatusOK, result)
}

// HandlePlanTurn handles POST /v1/tutor/plans/:id/turns.
//
// Response:
//
//	200 OK: plan.WorkflowResult
//	400 Bad Request: Missing answer
//	404 Not Found: Unknown plan session
//	410 Gone: Plan already complete
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandlePlanTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Answer is required",
			Code:  "EMPTY_ANSWER",
		})
		return
	}

	sessionID := c.Param("id")
	result, err := h.workflow.HandleTurn(c.Request.Context(), sessionID, req.Answer)
	if err != nil {
		status, code := http.StatusInternalServerError, "PLAN_ERROR"
		switch {
		case errors.Is(err, agent.ErrEmptyAnswer):
			status, code = http.StatusBadRequest, "EMPTY_ANSWER"
		case errors.Is(err, agent.ErrSessionNotFound):
			status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
		case errors.Is(err, plan.ErrPlanComplete):
			status, code = http.StatusGone, "PLAN_COMPLETE"
		case errors.Is(err, plan.ErrAgentOutput):
			status, code = http.StatusBadGateway, "AGENT_OUTPUT"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if h.metrics != nil && result.Route == plan.RouteReplan {
		h.metrics.ReplansTotal.Add(c.Request.Context(), 1)
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetPlan handles GET /v1/tutor/plans/:id.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetPlan(c *gin.Context) {
	state, err := h.workflow.GetState(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleCreateJob handles POST /v1/tutor/jobs.
//
// Description:
//
//	Creates a job record and submits it to the worker pool. The claim
//	happens before the response, so the returned job is already
//	running.
//
// Response:
//
//	202 Accepted: joblock.Job
//	400 Bad Request: Unknown job kind
//	503 Service Unavailable: Pool closed or saturated
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCreateJob(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateJob")

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Job kind is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	runner, ok := h.runners[req.Kind]
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown job kind: " + req.Kind,
			Code:  "UNKNOWN_JOB_KIND",
		})
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), req.Kind)
	if err != nil {
		logger.Error("Job creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "JOB_ERROR",
		})
		return
	}

	// The pool runs the job on its own lifetime, not the request's.
	if _, err := h.pool.Submit(context.WithoutCancel(c.Request.Context()), job.ID, runner); err != nil {
		status, code := http.StatusInternalServerError, "JOB_ERROR"
		if errors.Is(err, joblock.ErrPoolClosed) {
			status, code = http.StatusServiceUnavailable, "POOL_CLOSED"
		}
		logger.Error("Job submit failed", "job_id", job.ID, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if h.metrics != nil {
		h.metrics.JobsTotal.Add(c.Request.Context(), 1, metric.WithAttributes(
			attribute.String("kind", req.Kind),
		))
	}

	started, err := h.jobs.GetJob(c.Request.Context(), job.ID)
	if err != nil {
		started = job
	}
	c.JSON(http.StatusAccepted, started)
}

// HandleGetJob handles GET /v1/tutor/jobs/:id.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, code := http.StatusInternalServerError, "JOB_ERROR"
		if errors.Is(err, joblock.ErrJobNotFound) {
			status, code = http.StatusNotFound, "JOB_NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	c.JSON(http.StatusOK, job)
}

// HandleHealth handles GET /v1/tutor/health.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveSessions: len(h.graph.ListSessions()),
	})
}
