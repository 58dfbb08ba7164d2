// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

// DefaultMaxTurns is the hard turn budget for one plan workflow.
const DefaultMaxTurns = 30

// Workflow composes the planner, executor, and evaluator around a shared
// mutable study plan.
//
// Description:
//
//	Entry routing per turn: the planner runs when no plan exists yet, the
//	executor runs when a plan exists and the current step has not been
//	evaluated, and the evaluator runs immediately after an executor run.
//	The evaluator's routing flag sends control back to the planner
//	(replan), on through the executor (continue), or terminates (end).
//
// Thread Safety: Workflow is safe for concurrent use across different
// sessions; per-session state is guarded by the state store.
type Workflow struct {
	planner   *Planner
	executor  *Executor
	evaluator *Evaluator

	states   *StateStore
	maxTurns int
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithMaxTurns overrides the hard turn budget.
func WithMaxTurns(n int) WorkflowOption {
	return func(w *Workflow) {
		if n > 0 {
			w.maxTurns = n
		}
	}
}

// WithStateStore sets the per-session state store.
func WithStateStore(store *StateStore) WorkflowOption {
	return func(w *Workflow) {
		w.states = store
	}
}

// NewWorkflow creates a plan workflow around a structured caller.
//
// Inputs:
//
//	caller - The shared agent invocation contract.
//	opts - Configuration options.
//
// Outputs:
//
//	*Workflow - The configured workflow.
func NewWorkflow(caller *StructuredCaller, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		planner:   NewPlanner(caller),
		executor:  NewExecutor(caller),
		evaluator: NewEvaluator(caller),
		states:    NewStateStore(),
		maxTurns:  DefaultMaxTurns,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates workflow state and runs the opening turn.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	student - The learner profile.
//	goal - The learning objective; Topic must not be empty.
//
// Outputs:
//
//	*WorkflowResult - The opening teaching turn.
//	error - Non-nil if planning or execution failed.
func (w *Workflow) Start(ctx context.Context, student agent.Student, goal agent.Goal) (*WorkflowResult, error) {
	if goal.Topic == "" {
		return nil, agent.ErrInvalidSession
	}

	state := &WorkflowState{
		SessionID: uuid.NewString(),
		Student:   student,
		Goal:      goal,
	}
	w.states.Put(state)

	result, err := w.runTurn(ctx, state, "")
	if err != nil {
		w.states.Delete(state.SessionID)
		return nil, err
	}
	return result, nil
}

// HandleTurn processes one student answer through the workflow.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	sessionID - The workflow session.
//	answer - The student's answer (must not be empty).
//
// Outputs:
//
//	*WorkflowResult - The next teaching turn, or a terminal result.
//	error - Non-nil if the session is missing or finished.
func (w *Workflow) HandleTurn(ctx context.Context, sessionID, answer string) (*WorkflowResult, error) {
	if answer == "" {
		return nil, agent.ErrEmptyAnswer
	}

	state, ok := w.states.Get(sessionID)
	if !ok {
		return nil, agent.ErrSessionNotFound
	}
	if state.Done {
		return nil, ErrPlanComplete
	}

	return w.runTurn(ctx, state, answer)
}

// GetState returns the workflow state for a session.
func (w *Workflow) GetState(sessionID string) (*WorkflowState, error) {
	state, ok := w.states.Get(sessionID)
	if !ok {
		return nil, agent.ErrSessionNotFound
	}
	return state, nil
}

// runTurn executes one workflow turn under the session's lock.
func (w *Workflow) runTurn(ctx context.Context, state *WorkflowState, answer string) (*WorkflowResult, error) {
	unlock := w.states.Lock(state.SessionID)
	defer unlock()

	state.Turns++
	if answer != "" {
		state.History = append(state.History, agent.Turn{
			Role:      "student",
			Content:   answer,
			Timestamp: time.Now(),
		})
	}

	// Budget exhaustion terminates regardless of plan progress.
	if state.Turns > w.maxTurns {
		state.Done = true
		slog.Info("Plan workflow budget exhausted",
			slog.String("session_id", state.SessionID),
			slog.Int("turns", state.Turns),
		)
		return w.terminalResult(state, "We've covered a lot today. Let's pick this up next session."), nil
	}

	feedback := ""
	route := Route("")

	if state.PendingEvaluation {
		question := lastTutorContent(state.History)
		eval, err := w.evaluator.Evaluate(ctx, state, question, answer)
		if err != nil {
			return nil, err
		}
		state.PendingEvaluation = false
		state.LastFeedback = eval.Feedback
		feedback = eval.Feedback
		route = eval.Route

		if eval.StepCompleted {
			if step, _ := state.Plan.CurrentStep(); step != nil {
				step.Status = StepCompleted
			}
		}

		slog.Info("Plan evaluation",
			slog.String("session_id", state.SessionID),
			slog.String("route", string(eval.Route)),
			slog.Bool("step_completed", eval.StepCompleted),
		)

		switch eval.Route {
		case RouteEnd:
			state.Done = true
			return w.terminalResult(state, feedback), nil
		case RouteReplan:
			revised, err := w.planner.Replan(ctx, state, eval.Feedback)
			if err != nil {
				return nil, err
			}
			state.Plan = revised
		}
	}

	if state.Plan == nil {
		newPlan, err := w.planner.Plan(ctx, state)
		if err != nil {
			return nil, err
		}
		state.Plan = newPlan
		slog.Info("Study plan created",
			slog.String("session_id", state.SessionID),
			slog.Int("steps", len(newPlan.Steps)),
		)
	}

	// All steps done without an explicit end route.
	if state.Plan.Completed() {
		state.Done = true
		return w.terminalResult(state, feedback), nil
	}

	out, step, err := w.executor.ExecuteStep(ctx, state)
	if err != nil {
		return nil, err
	}
	state.PendingEvaluation = true
	state.History = append(state.History, agent.Turn{
		Role:      "tutor",
		Content:   out.Message,
		Timestamp: time.Now(),
	})

	return &WorkflowResult{
		SessionID:          state.SessionID,
		Message:            out.Message,
		ExpectedAnswerForm: out.ExpectedAnswerForm,
		Hints:              out.Hints,
		Feedback:           feedback,
		Route:              route,
		PlanRevision:       state.Plan.Revision,
		StepID:             step.StepID,
		Done:               false,
	}, nil
}

// terminalResult builds the final result for a finished workflow.
func (w *Workflow) terminalResult(state *WorkflowState, feedback string) *WorkflowResult {
	revision := 0
	if state.Plan != nil {
		revision = state.Plan.Revision
	}
	return &WorkflowResult{
		SessionID:    state.SessionID,
		Feedback:     feedback,
		Route:        RouteEnd,
		PlanRevision: revision,
		Done:         true,
	}
}

// lastTutorContent returns the most recent tutor message content.
func lastTutorContent(history []agent.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "tutor" {
			return history[i].Content
		}
	}
	return ""
}

// StateStore holds workflow states keyed by session ID with a per-session
// lock serializing turn execution.
//
// Thread Safety: StateStore is safe for concurrent use.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]*WorkflowState
	locks  map[string]*sync.Mutex
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]*WorkflowState),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Get retrieves a state by session ID.
func (s *StateStore) Get(id string) (*WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	return state, ok
}

// Put stores a state.
func (s *StateStore) Put(state *WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = state
	if _, ok := s.locks[state.SessionID]; !ok {
		s.locks[state.SessionID] = &sync.Mutex{}
	}
}

// Delete removes a state and its lock.
func (s *StateStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	delete(s.locks, id)
}

// Lock acquires the per-session turn lock and returns its release func.
func (s *StateStore) Lock(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
