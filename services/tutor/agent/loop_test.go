// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockNode is a scriptable node executor for router tests.
type MockNode struct {
	name string
	fn   func(ctx context.Context, deps any, ts *TurnState) (TutorState, error)

	mu    sync.Mutex
	calls int
}

func (m *MockNode) Execute(ctx context.Context, deps any, ts *TurnState) (TutorState, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.fn(ctx, deps, ts)
}

func (m *MockNode) Name() string { return m.name }

func (m *MockNode) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// scriptedRegistry builds a registry of simple scripted nodes: PRESENT asks
// a question, CHECK routes on the answer "yes", ADVANCE/REMEDIATE/DIAGNOSE
// follow the graph.
func scriptedRegistry(endAfterAdvance bool) *DefaultNodeRegistry {
	r := NewNodeRegistry()

	r.Register(StatePresent, &MockNode{name: "present", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		ts.Teaching = &TeachingOutput{Message: "What is 1/2 + 1/4?", ExpectedAnswerForm: AnswerFreeText}
		ts.AppendHistory(Turn{Role: "tutor", Content: ts.Teaching.Message, State: StatePresent, TurnID: ts.TurnID})
		return StateCheck, nil
	}})

	r.Register(StateCheck, &MockNode{name: "check", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		correct := ts.Answer == "yes"
		ts.LastGrading = &GradingResult{Score: 0.9, Confidence: 0.8}
		ts.Evaluation = &EvaluationOutput{AnswerCorrect: correct}
		if correct {
			return StateAdvance, nil
		}
		return StateRemediate, nil
	}})

	r.Register(StateAdvance, &MockNode{name: "advance", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		if endAfterAdvance {
			return StateEnd, nil
		}
		ts.StepIdx++
		return StatePresent, nil
	}})

	r.Register(StateRemediate, &MockNode{name: "remediate", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		ts.Remediation = &TeachingOutput{Message: "Think of a pizza.", ExpectedAnswerForm: AnswerFreeText}
		return StateDiagnose, nil
	}})

	r.Register(StateDiagnose, &MockNode{name: "diagnose", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		ts.AppendEvidence(EvidenceItem{TurnID: ts.TurnID, Labels: []string{"fractions"}})
		return StatePresent, nil
	}})

	return r
}

func newTestGraph(t *testing.T, opts ...GraphOption) *DefaultTutorGraph {
	t.Helper()
	base := []GraphOption{WithNodeRegistry(scriptedRegistry(false))}
	return NewTutorGraph(append(base, opts...)...)
}

func TestTutorGraph_StartSession(t *testing.T) {
	g := newTestGraph(t)

	result, err := g.StartSession(context.Background(), Student{Name: "Ada"}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if result.NextAction != StateCheck {
		t.Errorf("NextAction = %s, want CHECK", result.NextAction)
	}
	if result.Teaching == nil || result.Teaching.Message == "" {
		t.Error("expected a teaching message from the opening turn")
	}
	if result.Fallback {
		t.Error("opening turn should not be a fallback")
	}

	session, err := g.GetSession(result.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.GetNextAction() != StateCheck {
		t.Errorf("session NextAction = %s, want CHECK", session.GetNextAction())
	}
	if session.GetVersion() != 1 {
		t.Errorf("Version = %d, want 1", session.GetVersion())
	}
	if len(session.History) != 1 {
		t.Errorf("history length = %d, want 1", len(session.History))
	}
}

func TestTutorGraph_StartSession_InvalidGoal(t *testing.T) {
	g := newTestGraph(t)

	_, err := g.StartSession(context.Background(), Student{}, Goal{})
	if !errors.Is(err, ErrInvalidSession) {
		t.Errorf("error = %v, want ErrInvalidSession", err)
	}
	if len(g.ListSessions()) != 0 {
		t.Error("failed start must not leave a session behind")
	}
}

func TestTutorGraph_HandleTurn_CorrectAnswer(t *testing.T) {
	g := newTestGraph(t)

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	result, err := g.HandleTurn(context.Background(), start.SessionID, "yes")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if result.NextAction != StateCheck {
		t.Errorf("NextAction = %s, want CHECK", result.NextAction)
	}
	if result.Evaluation == nil || !result.Evaluation.AnswerCorrect {
		t.Error("expected correct evaluation")
	}
	if result.StepIdx != 1 {
		t.Errorf("StepIdx = %d, want 1", result.StepIdx)
	}
	if result.Remediation != nil {
		t.Error("correct path should not remediate")
	}

	session, _ := g.GetSession(start.SessionID)
	// student answer + new question
	if len(session.History) != 3 {
		t.Errorf("history length = %d, want 3", len(session.History))
	}
	if session.GetVersion() != 2 {
		t.Errorf("Version = %d, want 2", session.GetVersion())
	}
}

func TestTutorGraph_HandleTurn_IncorrectAnswer(t *testing.T) {
	g := newTestGraph(t)

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	result, err := g.HandleTurn(context.Background(), start.SessionID, "no idea")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if result.Remediation == nil {
		t.Error("incorrect path should produce remediation")
	}
	if result.StepIdx != 0 {
		t.Errorf("StepIdx = %d, want 0 on remediation path", result.StepIdx)
	}

	session, _ := g.GetSession(start.SessionID)
	if len(session.Evidence) != 1 {
		t.Errorf("evidence length = %d, want 1", len(session.Evidence))
	}
}

func TestTutorGraph_HandleTurn_EndsSession(t *testing.T) {
	g := NewTutorGraph(WithNodeRegistry(scriptedRegistry(true)))

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	result, err := g.HandleTurn(context.Background(), start.SessionID, "yes")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if result.NextAction != StateEnd {
		t.Errorf("NextAction = %s, want END", result.NextAction)
	}

	_, err = g.HandleTurn(context.Background(), start.SessionID, "more")
	if !errors.Is(err, ErrSessionEnded) {
		t.Errorf("turn on ended session: error = %v, want ErrSessionEnded", err)
	}
}

func TestTutorGraph_HandleTurn_Errors(t *testing.T) {
	g := newTestGraph(t)

	if _, err := g.HandleTurn(context.Background(), "missing", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: error = %v, want ErrSessionNotFound", err)
	}

	start, _ := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if _, err := g.HandleTurn(context.Background(), start.SessionID, ""); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("empty answer: error = %v, want ErrEmptyAnswer", err)
	}
}

func TestTutorGraph_FallbackDiscardsTurn(t *testing.T) {
	r := scriptedRegistry(false)
	r.Register(StateCheck, &MockNode{name: "check", fn: func(_ context.Context, _ any, _ *TurnState) (TutorState, error) {
		return StateCheck, errors.New("llm unavailable")
	}})
	g := NewTutorGraph(WithNodeRegistry(r))

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	session, _ := g.GetSession(start.SessionID)
	versionBefore := session.GetVersion()
	historyBefore := len(session.History)

	result, err := g.HandleTurn(context.Background(), start.SessionID, "yes")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if !result.Fallback {
		t.Error("expected fallback result")
	}
	if result.Teaching == nil || result.Teaching.Message != FallbackMessage {
		t.Errorf("expected fallback message, got %+v", result.Teaching)
	}
	if result.NextAction != StateCheck {
		t.Errorf("NextAction = %s, want previous pending CHECK", result.NextAction)
	}

	if session.GetVersion() != versionBefore {
		t.Error("failed turn must not bump the version")
	}
	if len(session.History) != historyBefore {
		t.Error("failed turn must not append history")
	}
}

func TestTutorGraph_NoNodeRegistered(t *testing.T) {
	g := NewTutorGraph(WithNodeRegistry(NewNodeRegistry()))

	// The opening turn cannot run PRESENT, so the start falls back and the
	// session stays on IDLE.
	result, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !result.Fallback {
		t.Error("expected fallback when no node is registered")
	}
}

func TestTutorGraph_ConcurrentTurnRejected(t *testing.T) {
	blocker := make(chan struct{})
	started := make(chan struct{})

	r := scriptedRegistry(false)
	r.Register(StateCheck, &MockNode{name: "check", fn: func(ctx context.Context, _ any, ts *TurnState) (TutorState, error) {
		close(started)
		<-blocker
		ts.LastGrading = &GradingResult{Score: 1, Confidence: 1}
		return StateAdvance, nil
	}})
	g := NewTutorGraph(WithNodeRegistry(r))

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := g.HandleTurn(context.Background(), start.SessionID, "yes")
		done <- err
	}()

	<-started
	_, err = g.HandleTurn(context.Background(), start.SessionID, "yes")
	if !errors.Is(err, ErrSessionInProgress) {
		t.Errorf("concurrent turn: error = %v, want ErrSessionInProgress", err)
	}

	close(blocker)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
}

func TestTutorGraph_CloseSession(t *testing.T) {
	g := newTestGraph(t)

	start, _ := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err := g.CloseSession(start.SessionID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := g.CloseSession(start.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("double close: error = %v, want ErrSessionNotFound", err)
	}
	if _, err := g.GetSession(start.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("closed session still retrievable: %v", err)
	}
}

// recordingRepo captures Save calls for persistence tests.
type recordingRepo struct {
	mu    sync.Mutex
	saves []Snapshot
	err   error
}

func (r *recordingRepo) Save(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves = append(r.saves, snap)
	return nil
}

func (r *recordingRepo) Load(_ context.Context, _ string) (Snapshot, error) {
	return Snapshot{}, ErrSessionNotFound
}

func TestTutorGraph_PersistsSnapshots(t *testing.T) {
	repo := &recordingRepo{}
	g := newTestGraph(t, WithSessionRepository(repo))

	start, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := g.HandleTurn(context.Background(), start.SessionID, "yes"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.saves) != 2 {
		t.Fatalf("expected 2 snapshot saves, got %d", len(repo.saves))
	}
	if repo.saves[0].Version != 1 || repo.saves[1].Version != 2 {
		t.Errorf("snapshot versions = %d, %d; want 1, 2", repo.saves[0].Version, repo.saves[1].Version)
	}
}

func TestTutorGraph_PersistenceFailureDoesNotFailTurn(t *testing.T) {
	repo := &recordingRepo{err: ErrStaleState}
	g := newTestGraph(t, WithSessionRepository(repo))

	result, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "fractions"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if result.Fallback {
		t.Error("persistence failure must not produce a fallback")
	}
}

func TestTutorGraph_MaxConcurrentTurns(t *testing.T) {
	blocker := make(chan struct{})
	started := make(chan struct{})

	r := NewNodeRegistry()
	r.Register(StatePresent, &MockNode{name: "present", fn: func(_ context.Context, _ any, ts *TurnState) (TutorState, error) {
		close(started)
		<-blocker
		ts.Teaching = &TeachingOutput{Message: "q"}
		return StateCheck, nil
	}})
	g := NewTutorGraph(WithNodeRegistry(r), WithMaxConcurrentTurns(1))

	done := make(chan struct{})
	go func() {
		_, _ = g.StartSession(context.Background(), Student{}, Goal{Topic: "a"})
		close(done)
	}()

	<-started
	_, err := g.StartSession(context.Background(), Student{}, Goal{Topic: "b"})
	if err == nil {
		t.Error("expected concurrency limit error")
	}

	close(blocker)
	<-done
}

func TestInMemorySessionStore(t *testing.T) {
	store := NewInMemorySessionStore()

	s := &Session{ID: "b"}
	store.Put(s)
	store.Put(&Session{ID: "a"})

	got, ok := store.Get("b")
	if !ok || got != s {
		t.Error("Get returned wrong session")
	}

	ids := store.List()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("List() = %v, want sorted [a b]", ids)
	}

	store.Delete("b")
	if _, ok := store.Get("b"); ok {
		t.Error("deleted session still present")
	}
}
