// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan implements the plan-driven orchestration layer: a planner,
// executor, and evaluator agent composed around a shared mutable study
// plan, looping until the plan completes or needs revision.
package plan

import (
	"time"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

// StepType classifies what a plan step asks the executor to do.
type StepType string

const (
	// StepExplain introduces or re-teaches a concept.
	StepExplain StepType = "explain"

	// StepCheck poses a question probing a concept.
	StepCheck StepType = "check"

	// StepReview consolidates previously covered concepts.
	StepReview StepType = "review"
)

// StepStatus is the lifecycle state of one plan step.
//
// Statuses move forward only (pending, in_progress, completed) except when
// the evaluator triggers a replan, which may reopen steps.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepBlocked    StepStatus = "blocked"
)

// StudyPlanStep is one ordered unit of a study plan.
type StudyPlanStep struct {
	// StepID uniquely identifies the step within its plan.
	StepID string `json:"step_id" validate:"required"`

	// Type classifies the step.
	Type StepType `json:"type" validate:"required,oneof=explain check review"`

	// Concept names what the step teaches or probes.
	Concept string `json:"concept" validate:"required"`

	// Status is the step's lifecycle state.
	Status StepStatus `json:"status"`
}

// StudyPlan is an ordered sequence of steps toward a learning goal.
type StudyPlan struct {
	// ID identifies the plan.
	ID string `json:"id"`

	// Topic is the learning goal the plan serves.
	Topic string `json:"topic"`

	// Steps is the ordered step sequence.
	Steps []StudyPlanStep `json:"steps"`

	// Revision counts planner rewrites, starting at 1.
	Revision int `json:"revision"`

	// CreatedAt is when the plan was first produced.
	CreatedAt time.Time `json:"created_at"`
}

// CurrentStep returns the first step that is pending or in progress.
//
// Outputs:
//
//	*StudyPlanStep - Pointer into the plan's step slice, or nil.
//	int - The step's index, or -1.
func (p *StudyPlan) CurrentStep() (*StudyPlanStep, int) {
	for i := range p.Steps {
		switch p.Steps[i].Status {
		case StepPending, StepInProgress:
			return &p.Steps[i], i
		}
	}
	return nil, -1
}

// Completed reports whether every step finished.
func (p *StudyPlan) Completed() bool {
	for _, s := range p.Steps {
		if s.Status != StepCompleted {
			return false
		}
	}
	return len(p.Steps) > 0
}

// Route is the evaluator's explicit routing decision.
type Route string

const (
	// RouteReplan sends control back to the planner for a plan revision.
	RouteReplan Route = "replan"

	// RouteContinue proceeds with the current plan.
	RouteContinue Route = "continue"

	// RouteEnd terminates the workflow.
	RouteEnd Route = "end"
)

// PlannerOutput is the planner agent's structured output schema.
type PlannerOutput struct {
	// Steps is the ordered plan, at least one step.
	Steps []PlannedStep `json:"steps" validate:"required,min=1,dive"`

	// Rationale explains the plan structure.
	Rationale string `json:"rationale"`
}

// PlannedStep is one step as emitted by the planner.
type PlannedStep struct {
	StepID  string   `json:"step_id" validate:"required"`
	Type    StepType `json:"type" validate:"required,oneof=explain check review"`
	Concept string   `json:"concept" validate:"required"`
}

// ExecutorOutput is the executor agent's structured output schema. It is
// the plan workflow's teaching-turn shape, mirroring the router's.
type ExecutorOutput struct {
	// Message is the teaching or exam content for the student.
	Message string `json:"message" validate:"required"`

	// ExpectedAnswerForm tells the presentation layer what input to collect.
	ExpectedAnswerForm agent.AnswerForm `json:"expected_answer_form" validate:"omitempty,oneof=free_text multiple_choice numeric"`

	// Hints are optional scaffolds.
	Hints []string `json:"hints,omitempty"`
}

// EvaluatorOutput is the evaluator agent's structured output schema.
type EvaluatorOutput struct {
	// Route is the explicit routing flag.
	Route Route `json:"route" validate:"required,oneof=replan continue end"`

	// Feedback is shown to the student.
	Feedback string `json:"feedback"`

	// StepCompleted marks the current step finished.
	StepCompleted bool `json:"step_completed"`

	// AnswerCorrect is the evaluator's judgment of the latest answer.
	AnswerCorrect bool `json:"answer_correct"`
}

// WorkflowState is the per-session mutable state of the plan workflow.
type WorkflowState struct {
	// SessionID keys the state.
	SessionID string `json:"session_id"`

	// Student and Goal are the planning inputs.
	Student agent.Student `json:"student"`
	Goal    agent.Goal    `json:"goal"`

	// Plan is the shared mutable study plan; nil before the first turn.
	Plan *StudyPlan `json:"plan,omitempty"`

	// PendingEvaluation is true after an executor run, before the
	// evaluator has judged the student's answer.
	PendingEvaluation bool `json:"pending_evaluation"`

	// Turns counts workflow turns against the hard budget.
	Turns int `json:"turns"`

	// Done marks the workflow terminated.
	Done bool `json:"done"`

	// LastFeedback is the most recent evaluator feedback.
	LastFeedback string `json:"last_feedback,omitempty"`

	// History is the conversation so far.
	History []agent.Turn `json:"history"`
}

// WorkflowResult is what one workflow turn returns to the caller.
type WorkflowResult struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// Message is the content for the student.
	Message string `json:"message"`

	// ExpectedAnswerForm tells the presentation layer what to collect.
	ExpectedAnswerForm agent.AnswerForm `json:"expected_answer_form"`

	// Hints are optional scaffolds.
	Hints []string `json:"hints,omitempty"`

	// Feedback is the evaluator's judgment of the previous answer, when
	// one was evaluated this turn.
	Feedback string `json:"feedback,omitempty"`

	// Route is the evaluator decision applied this turn, if any.
	Route Route `json:"route,omitempty"`

	// PlanRevision is the revision of the active plan.
	PlanRevision int `json:"plan_revision"`

	// StepID is the plan step the message belongs to.
	StepID string `json:"step_id,omitempty"`

	// Done marks the workflow terminated.
	Done bool `json:"done"`
}
