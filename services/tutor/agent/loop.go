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
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// maxNodesPerTurn bounds node executions in a single turn. The longest
// legal path is CHECK -> REMEDIATE -> DIAGNOSE -> PRESENT, so anything
// past this indicates a routing bug.
const maxNodesPerTurn = 8

// FallbackMessage is returned to the student when a turn cannot complete.
const FallbackMessage = "I had trouble processing that. Could you try rephrasing your answer?"

// TutorGraph defines the interface for running tutoring sessions.
//
// The graph orchestrates the state machine, nodes, and LLM interactions
// to drive a session through present/check/remediate/advance turns.
type TutorGraph interface {
	// StartSession creates a session and runs its opening turn.
	//
	// Description:
	//   Creates a new session in IDLE state, then executes nodes until the
	//   session pauses awaiting the student's first answer.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   student - The learner profile.
	//   goal - The learning objective.
	//
	// Outputs:
	//   *TurnResult - The opening turn result, including the first question.
	//   error - Non-nil if the session could not be created.
	//
	// Thread Safety: This method is safe for concurrent use.
	StartSession(ctx context.Context, student Student, goal Goal) (*TurnResult, error)

	// HandleTurn processes one student answer.
	//
	// Description:
	//   Grades the answer, routes through remediation or advancement, and
	//   runs until the session pauses awaiting the next answer or ends.
	//   A turn that fails mid-flight commits nothing; the session stays on
	//   its previous pending action and the result carries a fallback
	//   message.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   sessionID - The session to advance.
	//   answer - The student's answer (must not be empty).
	//
	// Outputs:
	//   *TurnResult - The turn result.
	//   error - Non-nil if the session is missing, ended, or busy.
	//
	// Thread Safety: This method is safe for concurrent use.
	HandleTurn(ctx context.Context, sessionID string, answer string) (*TurnResult, error)

	// GetSession returns the full session object.
	//
	// Thread Safety: This method is safe for concurrent use.
	GetSession(sessionID string) (*Session, error)

	// CloseSession removes a session and releases its resources.
	//
	// Thread Safety: This method is safe for concurrent use.
	CloseSession(sessionID string) error

	// ListSessions returns all active session IDs.
	//
	// Thread Safety: This method is safe for concurrent use.
	ListSessions() []string
}

// SessionRepository persists session snapshots.
//
// Description:
//
//	Implementations enforce optimistic concurrency: Save must reject a
//	snapshot whose version does not follow the stored version.
type SessionRepository interface {
	// Save persists a snapshot. Returns ErrStaleState when the snapshot
	// lost a concurrent update.
	Save(ctx context.Context, snap Snapshot) error

	// Load retrieves a snapshot by session ID.
	Load(ctx context.Context, sessionID string) (Snapshot, error)
}

// SessionStore manages live sessions.
type SessionStore interface {
	// Get retrieves a session by ID.
	Get(id string) (*Session, bool)

	// Put stores a session.
	Put(session *Session)

	// Delete removes a session.
	Delete(id string)

	// List returns all active session IDs.
	List() []string
}

// TurnObserver receives completed turn results, for logging and metrics.
type TurnObserver func(sessionID string, result *TurnResult)

// DefaultTutorGraph implements the TutorGraph interface.
//
// Thread Safety: DefaultTutorGraph is safe for concurrent use.
type DefaultTutorGraph struct {
	// sessions stores active sessions.
	sessions SessionStore

	// stateMachine validates transitions between nodes.
	stateMachine *StateMachine

	// registry provides node implementations.
	registry NodeRegistry

	// nodeDeps contains dependencies passed to nodes.
	nodeDeps any

	// repository persists snapshots after committed turns. Optional.
	repository SessionRepository

	// sessionConfig is applied to new sessions.
	sessionConfig *SessionConfig

	// observer is notified after each committed turn. Optional.
	observer TurnObserver

	mu sync.Mutex

	// maxConcurrent limits concurrently running turns (0 = unlimited).
	maxConcurrent int

	// activeTurns tracks currently running turns.
	activeTurns int
}

// GraphOption configures a DefaultTutorGraph.
type GraphOption func(*DefaultTutorGraph)

// WithSessionStore sets the session store.
func WithSessionStore(store SessionStore) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.sessions = store
	}
}

// WithNodeRegistry sets the node registry.
func WithNodeRegistry(registry NodeRegistry) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.registry = registry
	}
}

// WithNodeDependencies sets dependencies passed to all nodes.
func WithNodeDependencies(deps any) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.nodeDeps = deps
	}
}

// WithSessionRepository sets the snapshot repository.
//
// Description:
//
//	When set, every committed turn is persisted. Persistence failures are
//	logged but do not fail the turn; the live session remains
//	authoritative.
func WithSessionRepository(repo SessionRepository) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.repository = repo
	}
}

// WithSessionConfig sets the configuration applied to new sessions.
func WithSessionConfig(config *SessionConfig) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.sessionConfig = config
	}
}

// WithTurnObserver sets a callback invoked after each committed turn.
func WithTurnObserver(observer TurnObserver) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.observer = observer
	}
}

// WithMaxConcurrentTurns limits concurrently running turns.
//
// Inputs:
//
//	max - Maximum concurrent turns (0 = unlimited).
func WithMaxConcurrentTurns(max int) GraphOption {
	return func(g *DefaultTutorGraph) {
		g.maxConcurrent = max
	}
}

// NewTutorGraph creates a new tutor graph.
//
// Description:
//
//	Creates a graph with the specified options. If no session store is
//	provided, uses an in-memory store. A node registry must be provided
//	for the graph to run turns.
//
// Inputs:
//
//	opts - Configuration options.
//
// Outputs:
//
//	*DefaultTutorGraph - The configured graph.
func NewTutorGraph(opts ...GraphOption) *DefaultTutorGraph {
	g := &DefaultTutorGraph{
		sessions:     NewInMemorySessionStore(),
		stateMachine: DefaultStateMachine,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// StartSession implements TutorGraph.
func (g *DefaultTutorGraph) StartSession(ctx context.Context, student Student, goal Goal) (*TurnResult, error) {
	session, err := NewSession(student, goal, g.sessionConfig)
	if err != nil {
		return nil, err
	}

	slog.Info("Tutor session starting",
		slog.String("session_id", session.ID),
		slog.String("topic", goal.Topic),
	)

	g.sessions.Put(session)

	result, err := g.runTurn(ctx, session, "")
	if err != nil {
		g.sessions.Delete(session.ID)
		return nil, err
	}
	return result, nil
}

// HandleTurn implements TutorGraph.
func (g *DefaultTutorGraph) HandleTurn(ctx context.Context, sessionID string, answer string) (*TurnResult, error) {
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	session, ok := g.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.GetNextAction() == StateEnd {
		return nil, ErrSessionEnded
	}

	return g.runTurn(ctx, session, answer)
}

// GetSession implements TutorGraph.
func (g *DefaultTutorGraph) GetSession(sessionID string) (*Session, error) {
	session, ok := g.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CloseSession implements TutorGraph.
func (g *DefaultTutorGraph) CloseSession(sessionID string) error {
	_, ok := g.sessions.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	slog.Info("Closing tutor session", slog.String("session_id", sessionID))
	g.sessions.Delete(sessionID)
	return nil
}

// ListSessions implements TutorGraph.
func (g *DefaultTutorGraph) ListSessions() []string {
	return g.sessions.List()
}

// runTurn executes one turn: node loop, commit, persist.
func (g *DefaultTutorGraph) runTurn(ctx context.Context, session *Session, answer string) (*TurnResult, error) {
	if !session.TryAcquire() {
		slog.Warn("Turn already in progress", slog.String("session_id", session.ID))
		return nil, ErrSessionInProgress
	}
	defer session.Release()

	if err := g.acquireSlot(); err != nil {
		return nil, err
	}
	defer g.releaseSlot()

	if session.Config != nil && session.Config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, session.Config.TurnTimeout)
		defer cancel()
	}

	ts := session.BeginTurn(answer)
	startTime := time.Now()

	next, err := g.runNodes(ctx, session, ts)
	if err != nil {
		// The turn commits nothing. The session keeps its previous
		// pending action so the student can retry.
		slog.Error("Turn failed, discarding",
			slog.String("session_id", session.ID),
			slog.String("turn_id", ts.TurnID),
			slog.String("state", ts.Current.String()),
			slog.String("error", err.Error()),
		)
		return g.buildFallbackResult(session, ts), nil
	}

	if err := session.ApplyTurn(ts, next); err != nil {
		slog.Error("Turn commit rejected",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	slog.Info("Turn committed",
		slog.String("session_id", session.ID),
		slog.String("turn_id", ts.TurnID),
		slog.String("next_action", next.String()),
		slog.Int("step_idx", session.StepIdx),
		slog.Float64("mastery", session.MasteryScore),
		slog.Duration("duration", time.Since(startTime)),
	)

	g.persist(ctx, session)

	result := g.buildResult(session, ts, next)
	if g.observer != nil {
		g.observer(session.ID, result)
	}
	return result, nil
}

// runNodes executes nodes until the turn pauses at CHECK or reaches END.
func (g *DefaultTutorGraph) runNodes(ctx context.Context, session *Session, ts *TurnState) (TutorState, error) {
	if g.registry == nil {
		return ts.Current, ErrNoNode
	}

	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return ts.Current, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		if steps >= maxNodesPerTurn {
			return ts.Current, fmt.Errorf("%w: turn exceeded %d nodes", ErrInvalidTransition, maxNodesPerTurn)
		}

		node, ok := g.registry.GetNode(ts.Current)
		if !ok || node == nil {
			return ts.Current, fmt.Errorf("%w: %s", ErrNoNode, ts.Current)
		}

		slog.Debug("Executing node",
			slog.String("session_id", session.ID),
			slog.String("node", node.Name()),
			slog.String("state", ts.Current.String()),
		)

		next, err := node.Execute(ctx, g.nodeDeps, ts)
		if err != nil {
			return ts.Current, fmt.Errorf("node %s: %w", node.Name(), err)
		}

		from := ts.Current
		if err := g.stateMachine.Step(ts, next); err != nil {
			return ts.Current, err
		}

		slog.Debug("State transition",
			slog.String("session_id", session.ID),
			slog.String("from", from.String()),
			slog.String("to", next.String()),
			slog.String("reason", g.stateMachine.TransitionReason(from, next)),
		)

		// CHECK pauses the turn awaiting the next answer; END closes it.
		if next == StateCheck || next == StateEnd {
			return next, nil
		}
	}
}

// persist saves a snapshot of the committed session state.
func (g *DefaultTutorGraph) persist(ctx context.Context, session *Session) {
	if g.repository == nil {
		return
	}

	snap := session.ToSnapshot()
	if err := g.repository.Save(ctx, snap); err != nil {
		slog.Warn("Snapshot persistence failed",
			slog.String("session_id", session.ID),
			slog.Uint64("version", snap.Version),
			slog.String("error", err.Error()),
		)
	}
}

// buildResult assembles the TurnResult for a committed turn.
func (g *DefaultTutorGraph) buildResult(session *Session, ts *TurnState, next TutorState) *TurnResult {
	return &TurnResult{
		SessionID:    session.ID,
		TurnID:       ts.TurnID,
		NextAction:   next,
		Evaluation:   ts.Evaluation,
		Remediation:  ts.Remediation,
		Teaching:     ts.Teaching,
		StepIdx:      ts.StepIdx,
		MasteryScore: ts.MasteryScore,
	}
}

// buildFallbackResult assembles the TurnResult for a discarded turn.
func (g *DefaultTutorGraph) buildFallbackResult(session *Session, ts *TurnState) *TurnResult {
	snap := session.ToSnapshot()
	return &TurnResult{
		SessionID:  session.ID,
		TurnID:     ts.TurnID,
		NextAction: snap.NextAction,
		Teaching: &TeachingOutput{
			Message:            FallbackMessage,
			ExpectedAnswerForm: AnswerFreeText,
		},
		StepIdx:      snap.StepIdx,
		MasteryScore: snap.MasteryScore,
		Fallback:     true,
	}
}

// acquireSlot attempts to acquire a concurrent turn slot.
func (g *DefaultTutorGraph) acquireSlot() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxConcurrent > 0 && g.activeTurns >= g.maxConcurrent {
		return fmt.Errorf("maximum concurrent turns reached (%d)", g.maxConcurrent)
	}

	g.activeTurns++
	return nil
}

// releaseSlot releases a concurrent turn slot.
func (g *DefaultTutorGraph) releaseSlot() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeTurns--
}

// InMemorySessionStore is a simple in-memory session store.
//
// Thread Safety: InMemorySessionStore is safe for concurrent use.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemorySessionStore creates a new in-memory session store.
//
// Outputs:
//
//	*InMemorySessionStore - The new store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*Session),
	}
}

// Get implements SessionStore.
func (s *InMemorySessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Put implements SessionStore.
func (s *InMemorySessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Delete implements SessionStore.
func (s *InMemorySessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// List implements SessionStore.
//
// Description:
//
//	Returns all session IDs sorted alphabetically for deterministic ordering.
//
// Outputs:
//
//	[]string - All session IDs, sorted alphabetically.
//
// Thread Safety: This method is safe for concurrent use.
func (s *InMemorySessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
