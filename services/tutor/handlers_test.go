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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/agentlog"
	"github.com/AleutianAI/AleutianMentor/services/tutor/joblock"
	"github.com/AleutianAI/AleutianMentor/services/tutor/plan"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockTutorGraph implements agent.TutorGraph for testing.
type MockTutorGraph struct {
	startFunc      func(ctx context.Context, student agent.Student, goal agent.Goal) (*agent.TurnResult, error)
	turnFunc       func(ctx context.Context, sessionID, answer string) (*agent.TurnResult, error)
	getSessionFunc func(sessionID string) (*agent.Session, error)
	closeFunc      func(sessionID string) error
	listFunc       func() []string
}

func (m *MockTutorGraph) StartSession(ctx context.Context, student agent.Student, goal agent.Goal) (*agent.TurnResult, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, student, goal)
	}
	return &agent.TurnResult{
		SessionID:  "sess-1",
		TurnID:     "turn-1",
		NextAction: agent.StateCheck,
		Teaching:   &agent.TeachingOutput{Message: "What is 1/2 of 8?"},
	}, nil
}

func (m *MockTutorGraph) HandleTurn(ctx context.Context, sessionID, answer string) (*agent.TurnResult, error) {
	if m.turnFunc != nil {
		return m.turnFunc(ctx, sessionID, answer)
	}
	return &agent.TurnResult{
		SessionID:    sessionID,
		TurnID:       "turn-2",
		NextAction:   agent.StateCheck,
		StepIdx:      1,
		MasteryScore: 0.4,
	}, nil
}

func (m *MockTutorGraph) GetSession(sessionID string) (*agent.Session, error) {
	if m.getSessionFunc != nil {
		return m.getSessionFunc(sessionID)
	}
	return agent.NewSession(
		agent.Student{Name: "Alex", GradeLevel: "7"},
		agent.Goal{Topic: "fractions"},
		nil,
	)
}

func (m *MockTutorGraph) CloseSession(sessionID string) error {
	if m.closeFunc != nil {
		return m.closeFunc(sessionID)
	}
	return nil
}

func (m *MockTutorGraph) ListSessions() []string {
	if m.listFunc != nil {
		return m.listFunc()
	}
	return []string{"sess-1"}
}

func setupTestRouter(handlers *Handlers) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/v1")
	RegisterRoutes(v1, handlers)
	return r
}

func defaultHandlers(graph agent.TutorGraph) *Handlers {
	return NewHandlers(graph, agentlog.NewStore(), nil, nil, nil)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCreateSession(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/sessions", CreateSessionRequest{
		Student: agent.Student{Name: "Alex", GradeLevel: "7"},
		Goal:    agent.Goal{Topic: "fractions"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var result agent.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, agent.StateCheck, result.NextAction)
	require.NotNil(t, result.Teaching)
	assert.NotEmpty(t, result.Teaching.Message)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleCreateSession_EmptyTopic(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/sessions", CreateSessionRequest{
		Goal: agent.Goal{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "EMPTY_TOPIC", resp.Code)
}

func TestHandleTurn(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/sessions/sess-1/turns", TurnRequest{Answer: "4"})

	require.Equal(t, http.StatusOK, w.Code)
	var result agent.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, 1, result.StepIdx)
}

func TestHandleTurn_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing session", agent.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"busy session", agent.ErrSessionInProgress, http.StatusConflict, "SESSION_BUSY"},
		{"ended session", agent.ErrSessionEnded, http.StatusGone, "SESSION_ENDED"},
		{"empty answer", agent.ErrEmptyAnswer, http.StatusBadRequest, "EMPTY_ANSWER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := &MockTutorGraph{
				turnFunc: func(context.Context, string, string) (*agent.TurnResult, error) {
					return nil, tt.err
				},
			}
			router := setupTestRouter(defaultHandlers(graph))

			w := doJSON(t, router, http.MethodPost, "/v1/tutor/sessions/sess-1/turns", TurnRequest{Answer: "x"})

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleTurn_MissingAnswer(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/sessions/sess-1/turns", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetSession(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodGet, "/v1/tutor/sessions/sess-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var snap agent.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "fractions", snap.Goal.Topic)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	graph := &MockTutorGraph{
		getSessionFunc: func(string) (*agent.Session, error) {
			return nil, agent.ErrSessionNotFound
		},
	}
	router := setupTestRouter(defaultHandlers(graph))

	w := doJSON(t, router, http.MethodGet, "/v1/tutor/sessions/nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCloseSession(t *testing.T) {
	logs := agentlog.NewStore()
	logs.AddLog(agentlog.Entry{SessionID: "sess-1", AgentName: "present", EventType: "llm_call"})

	handlers := NewHandlers(&MockTutorGraph{}, logs, nil, nil, nil)
	router := setupTestRouter(handlers)

	w := doJSON(t, router, http.MethodDelete, "/v1/tutor/sessions/sess-1", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, logs.GetLogs("sess-1", agentlog.Filter{}))
}

func TestHandleGetLogs_Filtered(t *testing.T) {
	logs := agentlog.NewStore()
	logs.AddLog(agentlog.Entry{SessionID: "sess-1", TurnID: "t1", AgentName: "present", EventType: "llm_call"})
	logs.AddLog(agentlog.Entry{SessionID: "sess-1", TurnID: "t1", AgentName: "check", EventType: "grading"})
	logs.AddLog(agentlog.Entry{SessionID: "sess-1", TurnID: "t2", AgentName: "present", EventType: "llm_call"})

	handlers := NewHandlers(&MockTutorGraph{}, logs, nil, nil, nil)
	router := setupTestRouter(handlers)

	w := doJSON(t, router, http.MethodGet, "/v1/tutor/sessions/sess-1/logs?turn_id=t1&agent=present", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp LogsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "present", resp.Entries[0].AgentName)
	assert.Equal(t, "t1", resp.Entries[0].TurnID)
}

func TestPlanRoutes_EndToEnd(t *testing.T) {
	plannerJSON := `{"steps":[{"step_id":"s1","type":"explain","concept":"basics"}],"rationale":"short plan"}`
	executorJSON := `{"message":"Here are the basics. Ready?","expected_answer_form":"free_text"}`

	client := llm.NewMockClient(plannerJSON, executorJSON)
	workflow := plan.NewWorkflow(plan.NewStructuredCaller(client))

	handlers := NewHandlers(&MockTutorGraph{}, agentlog.NewStore(), workflow, nil, nil)
	router := setupTestRouter(handlers)

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/plans", CreatePlanRequest{
		Student: agent.Student{Name: "Alex"},
		Goal:    agent.Goal{Topic: "fractions"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var result plan.WorkflowResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "Here are the basics. Ready?", result.Message)

	// Plan state is inspectable.
	w = doJSON(t, router, http.MethodGet, "/v1/tutor/plans/"+result.SessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Unknown plan session maps to 404.
	w = doJSON(t, router, http.MethodPost, "/v1/tutor/plans/nope/turns", TurnRequest{Answer: "yes"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobRoutes(t *testing.T) {
	store := joblock.NewMemoryJobStore()
	svc := joblock.NewService(store, joblock.WithReleaseBackoff(0))
	pool := joblock.NewPool(func() (joblock.JobStore, error) { return store, nil }, 2)
	defer pool.Close()

	handlers := NewHandlers(&MockTutorGraph{}, agentlog.NewStore(), nil, svc, pool)
	router := setupTestRouter(handlers)

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/jobs", CreateJobRequest{Kind: "content_ingest"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var job joblock.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "content_ingest", job.Kind)

	// The job completes shortly after submission.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		if got.Status.IsTerminal() {
			assert.Equal(t, joblock.JobCompleted, got.Status)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/tutor/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/tutor/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/tutor/jobs", CreateJobRequest{Kind: "mystery"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodGet, "/v1/tutor/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.ActiveSessions)
}

func TestRegisterRoutes_DisabledGroups(t *testing.T) {
	// Without workflow and pool wiring, plan and job routes are absent.
	router := setupTestRouter(defaultHandlers(&MockTutorGraph{}))

	w := doJSON(t, router, http.MethodPost, "/v1/tutor/plans", CreatePlanRequest{Goal: agent.Goal{Topic: "x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/tutor/jobs", CreateJobRequest{Kind: "content_ingest"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
