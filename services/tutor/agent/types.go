// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the turn-routing state machine that drives a
// tutoring session.
//
// The router is a finite state machine over the states IDLE, PRESENT,
// CHECK, DIAGNOSE, REMEDIATE, ADVANCE, and END. Each state's node performs
// exactly one externally-visible effect (one LLM call or one bookkeeping
// update); the router composes node runs into turns and never fails.
// Infrastructure errors produce a fallback output with session state left
// untouched.
//
// Thread Safety:
//
//	All exported types in this package are designed for concurrent use.
//	Sessions are protected by internal synchronization.
package agent

import (
	"time"
)

// TutorState represents a state in the turn-routing state machine.
//
// Valid state transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type TutorState string

const (
	// StateIdle is the initial state before the session's first turn.
	StateIdle TutorState = "IDLE"

	// StatePresent generates the next teaching message.
	StatePresent TutorState = "PRESENT"

	// StateCheck grades the student's latest answer.
	StateCheck TutorState = "CHECK"

	// StateDiagnose records misconception evidence and updates per-concept
	// mastery. Pure bookkeeping; no LLM call.
	StateDiagnose TutorState = "DIAGNOSE"

	// StateRemediate generates a scaffolded re-explanation after a failed
	// check.
	StateRemediate TutorState = "REMEDIATE"

	// StateAdvance increments the step counter and folds the grading score
	// into the session mastery estimate.
	StateAdvance TutorState = "ADVANCE"

	// StateEnd indicates the session is complete.
	StateEnd TutorState = "END"
)

// String returns the string representation of the state.
func (s TutorState) String() string {
	return string(s)
}

// IsTerminal returns true if the state is the terminal END state.
func (s TutorState) IsTerminal() bool {
	return s == StateEnd
}

// AllStates returns all valid tutor states.
func AllStates() []TutorState {
	return []TutorState{
		StateIdle,
		StatePresent,
		StateCheck,
		StateDiagnose,
		StateRemediate,
		StateAdvance,
		StateEnd,
	}
}

// Student holds the immutable learner inputs for a session.
type Student struct {
	// Name is the student's display name.
	Name string `json:"name"`

	// GradeLevel is the student's grade (e.g., "7").
	GradeLevel string `json:"grade_level"`

	// Background carries optional free-form context for prompt building.
	Background string `json:"background,omitempty"`
}

// Goal holds the immutable learning objective for a session.
type Goal struct {
	// Topic is the subject being taught.
	Topic string `json:"topic"`

	// Objectives are the concrete learning objectives, in teaching order.
	Objectives []string `json:"objectives,omitempty"`
}

// GradingResult is the structured outcome of one Check grading call.
//
// Produced once per check, consumed immediately by the mastery model, and
// retained only as the session's LastGrading.
type GradingResult struct {
	// Score is the grading score (0.0-1.0).
	Score float64 `json:"score" validate:"gte=0,lte=1"`

	// Rationale explains the grade.
	Rationale string `json:"rationale"`

	// Labels are misconception tags attached by the grader.
	Labels []string `json:"labels,omitempty"`

	// Confidence is the grader's confidence in its own judgment (0.0-1.0).
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Correct reports whether the grade clears the advancement threshold.
func (g *GradingResult) Correct(threshold float64) bool {
	return g.Score >= threshold
}

// EvidenceItem is one misconception observation accumulated by Diagnose.
type EvidenceItem struct {
	// TurnID is the turn the observation came from.
	TurnID string `json:"turn_id"`

	// Labels are the misconception tags observed.
	Labels []string `json:"labels,omitempty"`

	// Score is the grading score that produced the observation.
	Score float64 `json:"score"`

	// Confidence is the grader confidence for the observation.
	Confidence float64 `json:"confidence"`

	// Timestamp is when the observation was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Turn is one entry of the session's append-only conversation history.
type Turn struct {
	// Role is "student" or "tutor".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// State is the node that produced the entry (empty for student turns).
	State TutorState `json:"state,omitempty"`

	// TurnID groups history entries produced within one turn.
	TurnID string `json:"turn_id"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// AnswerForm describes the expected shape of the student's next answer.
type AnswerForm string

const (
	AnswerFreeText       AnswerForm = "free_text"
	AnswerMultipleChoice AnswerForm = "multiple_choice"
	AnswerNumeric        AnswerForm = "numeric"
)

// MasterySignal summarizes the direction of the mastery estimate for the
// presentation layer.
type MasterySignal string

const (
	SignalAdvancing     MasterySignal = "advancing"
	SignalNeedsPractice MasterySignal = "needs_practice"
	SignalMastered      MasterySignal = "mastered"
)

// TeachingOutput is the presentation contract for teaching turns.
type TeachingOutput struct {
	// Message is the teaching or remediation text shown to the student.
	Message string `json:"message"`

	// ExpectedAnswerForm tells the presentation layer what input to collect.
	ExpectedAnswerForm AnswerForm `json:"expected_answer_form"`

	// Hints are optional scaffolding hints.
	Hints []string `json:"hints,omitempty"`
}

// EvaluationOutput is the presentation contract for evaluation turns.
type EvaluationOutput struct {
	// Feedback is the grading feedback shown to the student.
	Feedback string `json:"feedback"`

	// AnswerCorrect reports whether the answer cleared the threshold.
	AnswerCorrect bool `json:"answer_correct"`

	// MasterySignal summarizes mastery direction.
	MasterySignal MasterySignal `json:"mastery_signal"`
}

// TurnResult is the outcome of one routed turn.
//
// A single student turn may produce an evaluation (the graded answer), a
// remediation message, and a teaching message; the presentation layer
// renders whichever parts are present.
type TurnResult struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// TurnID identifies this turn.
	TurnID string `json:"turn_id"`

	// NextAction is the pending action after the turn (CHECK while the
	// session waits for an answer, END when complete).
	NextAction TutorState `json:"next_action"`

	// Evaluation is set when the turn graded an answer.
	Evaluation *EvaluationOutput `json:"evaluation,omitempty"`

	// Remediation is set when the turn produced a scaffolded re-explanation.
	Remediation *TeachingOutput `json:"remediation,omitempty"`

	// Teaching is set when the turn produced a new teaching message.
	Teaching *TeachingOutput `json:"teaching,omitempty"`

	// StepIdx is the session step counter after the turn.
	StepIdx int `json:"step_idx"`

	// MasteryScore is the session mastery estimate after the turn.
	MasteryScore float64 `json:"mastery_score"`

	// Fallback indicates the turn failed and a fixed default message was
	// substituted; session state was not advanced.
	Fallback bool `json:"fallback,omitempty"`
}

// Snapshot is the externally visible, persistable state of a session.
type Snapshot struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// Student and Goal are the immutable session inputs.
	Student Student `json:"student"`
	Goal    Goal    `json:"goal"`

	// NextAction is the pending action label.
	NextAction TutorState `json:"next_action"`

	// StepIdx is the 0-based progress counter (0..10).
	StepIdx int `json:"step_idx"`

	// MasteryScore is the session-level mastery estimate (0.0-1.0).
	MasteryScore float64 `json:"mastery_score"`

	// PerConcept holds per-concept mastery estimates.
	PerConcept map[string]float64 `json:"per_concept,omitempty"`

	// History is the append-only conversation history.
	History []Turn `json:"history"`

	// Evidence is the accumulated misconception evidence.
	Evidence []EvidenceItem `json:"evidence,omitempty"`

	// LastGrading is the most recent grading result, if any.
	LastGrading *GradingResult `json:"last_grading,omitempty"`

	// Version is the optimistic concurrency version, incremented on every
	// committed turn.
	Version uint64 `json:"version"`

	// CreatedAt and LastActiveAt are Unix milliseconds UTC.
	CreatedAt    int64 `json:"created_at"`
	LastActiveAt int64 `json:"last_active_at"`
}
