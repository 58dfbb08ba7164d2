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

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

const executorPrompt = `You are a tutor executing one step of a study plan.

Topic: %[1]s
Student: %[2]s
Current step: [%[3]s] %[4]s - concept: %[5]s
%[6]s
Conversation so far:
%[7]s

For an "explain" step, teach the concept briefly and end with one question.
For a "check" step, pose one question probing the concept.
For a "review" step, summarize and pose one consolidating question.

Respond in JSON:
{
  "message": "the teaching or exam content",
  "expected_answer_form": "free_text" | "multiple_choice" | "numeric",
  "hints": ["optional hint"]
}`

// Executor produces one teaching or exam turn for the current plan step.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	caller *StructuredCaller
}

// NewExecutor creates an executor agent.
func NewExecutor(caller *StructuredCaller) *Executor {
	return &Executor{caller: caller}
}

// ExecuteStep runs the current plan step.
//
// Description:
//
//	Issues one LLM turn for the plan's current step and marks that step
//	in progress. The evaluator decides later whether the step completed.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	state - The workflow state; state.Plan must have a runnable step.
//
// Outputs:
//
//	*ExecutorOutput - The teaching content.
//	*StudyPlanStep - The step executed.
//	error - ErrNoPlan, ErrNoCurrentStep, ErrAgentOutput, or an LLM error.
func (e *Executor) ExecuteStep(ctx context.Context, state *WorkflowState) (*ExecutorOutput, *StudyPlanStep, error) {
	if state.Plan == nil {
		return nil, nil, ErrNoPlan
	}

	step, _ := state.Plan.CurrentStep()
	if step == nil {
		return nil, nil, ErrNoCurrentStep
	}

	feedbackNote := ""
	if state.LastFeedback != "" {
		feedbackNote = "Evaluator feedback on the last answer: " + state.LastFeedback + "\n"
	}

	prompt := fmt.Sprintf(executorPrompt,
		state.Goal.Topic,
		describeStudent(state.Student),
		step.StepID,
		step.Type,
		step.Concept,
		feedbackNote,
		renderHistory(state.History),
	)

	var out ExecutorOutput
	if err := e.caller.Call(ctx, "executor", state.SessionID, prompt, &out); err != nil {
		return nil, nil, err
	}
	if out.ExpectedAnswerForm == "" {
		out.ExpectedAnswerForm = agent.AnswerFreeText
	}

	step.Status = StepInProgress
	return &out, step, nil
}

// historyWindow bounds how many trailing turns are rendered into prompts.
const historyWindow = 8

// renderHistory formats the trailing window of conversation turns.
func renderHistory(turns []agent.Turn) string {
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	if len(turns) == 0 {
		return "(no prior conversation)"
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimSpace(b.String())
}
