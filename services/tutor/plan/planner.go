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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

const plannerPrompt = `You are a curriculum planner building a short study plan.

Topic: %[1]s
Student: %[2]s
Objectives:
%[3]s
%[4]s
Produce an ordered study plan of 3 to 6 steps. Each step is "explain",
"check", or "review" and names one concept. Alternate explanation and
checking; end with a review.

Respond in JSON:
{
  "steps": [
    {"step_id": "s1", "type": "explain", "concept": "concept name"}
  ],
  "rationale": "one sentence"
}`

// Planner produces and revises study plans.
//
// Thread Safety: Planner is safe for concurrent use.
type Planner struct {
	caller *StructuredCaller
}

// NewPlanner creates a planner agent.
func NewPlanner(caller *StructuredCaller) *Planner {
	return &Planner{caller: caller}
}

// Plan produces a fresh study plan for a goal.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	state - The workflow state holding the goal and student profile.
//
// Outputs:
//
//	*StudyPlan - The new plan, all steps pending, revision 1.
//	error - ErrAgentOutput or a classified LLM error.
func (p *Planner) Plan(ctx context.Context, state *WorkflowState) (*StudyPlan, error) {
	return p.plan(ctx, state, "")
}

// Replan revises the plan using the evaluator's feedback.
//
// Description:
//
//	Produces a new revision of the plan. Steps already completed in the
//	old plan keep their completed status when the new plan reuses their
//	step IDs; everything else reopens as pending.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	state - The workflow state; state.Plan must not be nil.
//	feedback - The evaluator's reason for the replan.
//
// Outputs:
//
//	*StudyPlan - The revised plan with an incremented revision.
//	error - ErrNoPlan, ErrAgentOutput, or a classified LLM error.
func (p *Planner) Replan(ctx context.Context, state *WorkflowState, feedback string) (*StudyPlan, error) {
	if state.Plan == nil {
		return nil, ErrNoPlan
	}

	revisionNote := fmt.Sprintf("The previous plan (revision %d) was judged inadequate: %s\nPrevious steps:\n%s\nRevise the plan to address this.\n",
		state.Plan.Revision, feedback, describeSteps(state.Plan.Steps))

	revised, err := p.plan(ctx, state, revisionNote)
	if err != nil {
		return nil, err
	}

	revised.ID = state.Plan.ID
	revised.Revision = state.Plan.Revision + 1
	revised.CreatedAt = state.Plan.CreatedAt

	completed := map[string]bool{}
	for _, s := range state.Plan.Steps {
		if s.Status == StepCompleted {
			completed[s.StepID] = true
		}
	}
	for i := range revised.Steps {
		if completed[revised.Steps[i].StepID] {
			revised.Steps[i].Status = StepCompleted
		}
	}

	return revised, nil
}

// plan runs the planner prompt and materializes a StudyPlan.
func (p *Planner) plan(ctx context.Context, state *WorkflowState, replanContext string) (*StudyPlan, error) {
	prompt := fmt.Sprintf(plannerPrompt,
		state.Goal.Topic,
		describeStudent(state.Student),
		describeObjectives(state.Goal),
		replanContext,
	)

	var out PlannerOutput
	if err := p.caller.Call(ctx, "planner", state.SessionID, prompt, &out); err != nil {
		return nil, err
	}

	steps := make([]StudyPlanStep, 0, len(out.Steps))
	for _, s := range out.Steps {
		steps = append(steps, StudyPlanStep{
			StepID:  s.StepID,
			Type:    s.Type,
			Concept: s.Concept,
			Status:  StepPending,
		})
	}

	return &StudyPlan{
		ID:        uuid.NewString(),
		Topic:     state.Goal.Topic,
		Steps:     steps,
		Revision:  1,
		CreatedAt: time.Now(),
	}, nil
}

// describeSteps renders plan steps for prompt inclusion.
func describeSteps(steps []StudyPlanStep) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "- [%s] %s: %s (%s)\n", s.StepID, s.Type, s.Concept, s.Status)
	}
	return strings.TrimSpace(b.String())
}

// describeStudent renders a student profile for prompt inclusion.
func describeStudent(s agent.Student) string {
	parts := []string{}
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	if s.GradeLevel != "" {
		parts = append(parts, "grade level "+s.GradeLevel)
	}
	if s.Background != "" {
		parts = append(parts, "background: "+s.Background)
	}
	if len(parts) == 0 {
		return "a student"
	}
	return strings.Join(parts, ", ")
}

// describeObjectives renders goal objectives as a bullet list.
func describeObjectives(g agent.Goal) string {
	if len(g.Objectives) == 0 {
		return "- understand " + g.Topic
	}
	var b strings.Builder
	for _, o := range g.Objectives {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	return strings.TrimSpace(b.String())
}
