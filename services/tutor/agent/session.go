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
	"fmt"
	"time"

	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianMentor/services/tutor/mastery"
)

// SessionConfig holds the tunable parameters for a session.
//
// The contract constants (step budget, thresholds) live in the mastery
// package and are not configurable; this config covers timeouts and
// smoothing only.
//
// Thread Safety:
//
//	SessionConfig is immutable after creation.
type SessionConfig struct {
	// TurnTimeout is the maximum duration for a single turn, including
	// all LLM calls it issues.
	// Default: 60s
	TurnTimeout time.Duration `json:"turn_timeout"`

	// EMAAlpha is the smoothing factor for the session mastery score.
	// Default: mastery.DefaultEMAAlpha (0.4)
	EMAAlpha float64 `json:"ema_alpha"`

	// LearningRate is the per-concept learning rate.
	// Default: mastery.DefaultLearningRate (0.2)
	LearningRate float64 `json:"learning_rate"`
}

// DefaultSessionConfig returns production-ready default configuration.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		TurnTimeout:  60 * time.Second,
		EMAAlpha:     mastery.DefaultEMAAlpha,
		LearningRate: mastery.DefaultLearningRate,
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//
//	error - Non-nil if configuration is invalid, wraps ErrInvalidSession.
func (c *SessionConfig) Validate() error {
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("%w: TurnTimeout must be positive", ErrInvalidSession)
	}
	if c.EMAAlpha <= 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("%w: EMAAlpha must be in (0, 1]", ErrInvalidSession)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("%w: LearningRate must be in (0, 1]", ErrInvalidSession)
	}
	return nil
}

// Session represents one active tutoring session.
//
// Thread Safety:
//
//	Session uses internal synchronization for state access. Turn
//	execution is additionally serialized by TryAcquire/Release.
type Session struct {
	mu sync.RWMutex

	// ID is the unique session identifier.
	ID string `json:"id"`

	// Student and Goal are immutable after creation.
	Student Student `json:"student"`
	Goal    Goal    `json:"goal"`

	// NextAction is the pending action label.
	NextAction TutorState `json:"next_action"`

	// StepIdx is the 0-based progress counter; 0 <= StepIdx <= 10 and it
	// only increases.
	StepIdx int `json:"step_idx"`

	// MasteryScore is the session mastery estimate; always within [0, 1].
	MasteryScore float64 `json:"mastery_score"`

	// PerConcept holds per-concept mastery estimates.
	PerConcept map[string]float64 `json:"per_concept,omitempty"`

	// History is the append-only conversation history. Never truncated
	// within the session's lifetime; prompt windowing happens at render
	// time.
	History []Turn `json:"history"`

	// Evidence is the accumulated misconception evidence.
	Evidence []EvidenceItem `json:"evidence,omitempty"`

	// LastGrading is the most recent grading result.
	LastGrading *GradingResult `json:"last_grading,omitempty"`

	// Version increments on every committed turn.
	Version uint64 `json:"version"`

	// Config holds the session configuration.
	Config *SessionConfig `json:"config"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is when the session last committed a turn.
	LastActiveAt time.Time `json:"last_active_at"`

	// inProgress indicates a turn is currently running.
	inProgress bool
}

// NewSession creates a new tutoring session in IDLE state.
//
// Inputs:
//
//	student - The learner inputs (GradeLevel may be empty).
//	goal - The learning objective; Topic must not be empty.
//	config - Session configuration (uses defaults if nil).
//
// Outputs:
//
//	*Session - The new session.
//	error - Non-nil if inputs or configuration are invalid.
func NewSession(student Student, goal Goal, config *SessionConfig) (*Session, error) {
	if goal.Topic == "" {
		return nil, fmt.Errorf("%w: goal topic must not be empty", ErrInvalidSession)
	}
	if config == nil {
		config = DefaultSessionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		Student:      student,
		Goal:         goal,
		NextAction:   StateIdle,
		PerConcept:   make(map[string]float64),
		History:      make([]Turn, 0),
		Config:       config,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// TryAcquire attempts to mark the session as running a turn.
//
// Outputs:
//
//	bool - False if a turn is already in progress.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	return true
}

// Release marks the session as no longer running a turn.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
}

// GetNextAction returns the pending action label.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetNextAction() TutorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NextAction
}

// GetVersion returns the current optimistic concurrency version.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) GetVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Version
}

// TurnState is the mutable working copy for one turn.
//
// Description:
//
//	Nodes mutate the TurnState, never the session. The router commits a
//	completed turn with ApplyTurn; a failed or canceled turn is simply
//	discarded, leaving the session untouched. This keeps the per-turn
//	mutation points explicit.
//
// Thread Safety: TurnState is confined to the goroutine running the turn.
type TurnState struct {
	// SessionID identifies the owning session.
	SessionID string

	// TurnID identifies the turn.
	TurnID string

	// Current is the node being executed.
	Current TutorState

	// StepIdx and MasteryScore are working copies of the session values.
	StepIdx      int
	MasteryScore float64

	// PerConcept is a working copy of per-concept estimates.
	PerConcept map[string]float64

	// LastGrading is the working grading result.
	LastGrading *GradingResult

	// Answer is the student input for this turn (empty on the opening turn).
	Answer string

	// NewHistory accumulates history entries appended during the turn.
	NewHistory []Turn

	// NewEvidence accumulates evidence appended during the turn.
	NewEvidence []EvidenceItem

	// Evaluation, Remediation, and Teaching accumulate the turn outputs.
	Evaluation  *EvaluationOutput
	Remediation *TeachingOutput
	Teaching    *TeachingOutput

	// Config is the session configuration (read-only).
	Config *SessionConfig

	// Student, Goal, and PriorHistory are read-only prompt inputs.
	Student      Student
	Goal         Goal
	PriorHistory []Turn
}

// BeginTurn creates the working state for one turn.
//
// Description:
//
//	Copies the mutable session fields into a TurnState and, when the
//	student provided an answer, records it as a pending history entry.
//
// Inputs:
//
//	answer - The student input; empty for the session-opening turn.
//
// Outputs:
//
//	*TurnState - The working copy for node execution.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) BeginTurn(answer string) *TurnState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perConcept := make(map[string]float64, len(s.PerConcept))
	for k, v := range s.PerConcept {
		perConcept[k] = v
	}
	prior := make([]Turn, len(s.History))
	copy(prior, s.History)

	ts := &TurnState{
		SessionID:    s.ID,
		TurnID:       uuid.NewString(),
		Current:      s.NextAction,
		StepIdx:      s.StepIdx,
		MasteryScore: s.MasteryScore,
		PerConcept:   perConcept,
		LastGrading:  s.LastGrading,
		Answer:       answer,
		Config:       s.Config,
		Student:      s.Student,
		Goal:         s.Goal,
		PriorHistory: prior,
	}
	if s.NextAction == StateIdle {
		ts.Current = StatePresent
	}
	if answer != "" {
		ts.AppendHistory(Turn{
			Role:      "student",
			Content:   answer,
			TurnID:    ts.TurnID,
			Timestamp: time.Now(),
		})
	}
	return ts
}

// AppendHistory records a pending history entry for the turn.
func (ts *TurnState) AppendHistory(turn Turn) {
	ts.NewHistory = append(ts.NewHistory, turn)
}

// AppendEvidence records a pending evidence observation for the turn.
func (ts *TurnState) AppendEvidence(item EvidenceItem) {
	ts.NewEvidence = append(ts.NewEvidence, item)
}

// ApplyTurn commits a completed turn to the session.
//
// Description:
//
//	Merges the working copy back into the session at a single, explicit
//	point: scalars are assigned, pending history and evidence entries are
//	appended, and the version is incremented. StepIdx may never decrease;
//	a turn that would lower it is rejected.
//
// Inputs:
//
//	ts - The completed turn state.
//	next - The pending action after the turn.
//
// Outputs:
//
//	error - Non-nil if the turn violates a session invariant.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) ApplyTurn(ts *TurnState, next TutorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.StepIdx < s.StepIdx {
		return fmt.Errorf("%w: step index may not decrease (%d -> %d)",
			ErrInvalidSession, s.StepIdx, ts.StepIdx)
	}
	if ts.StepIdx > mastery.MaxSteps {
		return fmt.Errorf("%w: step index %d exceeds budget", ErrInvalidSession, ts.StepIdx)
	}

	s.StepIdx = ts.StepIdx
	s.MasteryScore = mastery.Clamp01(ts.MasteryScore)
	s.PerConcept = ts.PerConcept
	s.LastGrading = ts.LastGrading
	s.History = append(s.History, ts.NewHistory...)
	s.Evidence = append(s.Evidence, ts.NewEvidence...)
	s.NextAction = next
	s.Version++
	s.LastActiveAt = time.Now()
	return nil
}

// ToSnapshot returns a persistable copy of the session state.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Session) ToSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perConcept := make(map[string]float64, len(s.PerConcept))
	for k, v := range s.PerConcept {
		perConcept[k] = v
	}
	history := make([]Turn, len(s.History))
	copy(history, s.History)
	evidence := make([]EvidenceItem, len(s.Evidence))
	copy(evidence, s.Evidence)

	var grading *GradingResult
	if s.LastGrading != nil {
		g := *s.LastGrading
		grading = &g
	}

	return Snapshot{
		ID:           s.ID,
		Student:      s.Student,
		Goal:         s.Goal,
		NextAction:   s.NextAction,
		StepIdx:      s.StepIdx,
		MasteryScore: s.MasteryScore,
		PerConcept:   perConcept,
		History:      history,
		Evidence:     evidence,
		LastGrading:  grading,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt.UnixMilli(),
		LastActiveAt: s.LastActiveAt.UnixMilli(),
	}
}

// FromSnapshot rebuilds a session from a persisted snapshot.
//
// Inputs:
//
//	snap - The persisted state.
//	config - Session configuration (uses defaults if nil).
//
// Outputs:
//
//	*Session - The rehydrated session.
//	error - Non-nil if the snapshot violates a session invariant.
func FromSnapshot(snap Snapshot, config *SessionConfig) (*Session, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("%w: snapshot missing session ID", ErrInvalidSession)
	}
	if snap.StepIdx < 0 || snap.StepIdx > mastery.MaxSteps {
		return nil, fmt.Errorf("%w: step index %d out of range", ErrInvalidSession, snap.StepIdx)
	}
	if config == nil {
		config = DefaultSessionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	perConcept := snap.PerConcept
	if perConcept == nil {
		perConcept = make(map[string]float64)
	}

	return &Session{
		ID:           snap.ID,
		Student:      snap.Student,
		Goal:         snap.Goal,
		NextAction:   snap.NextAction,
		StepIdx:      snap.StepIdx,
		MasteryScore: mastery.Clamp01(snap.MasteryScore),
		PerConcept:   perConcept,
		History:      snap.History,
		Evidence:     snap.Evidence,
		LastGrading:  snap.LastGrading,
		Version:      snap.Version,
		Config:       config,
		CreatedAt:    time.UnixMilli(snap.CreatedAt),
		LastActiveAt: time.UnixMilli(snap.LastActiveAt),
	}, nil
}
