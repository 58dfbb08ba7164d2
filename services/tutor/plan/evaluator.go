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
)

const evaluatorPrompt = `You are evaluating a student's progress through a study plan.

Topic: %[1]s
Plan (revision %[2]d):
%[3]s

Current step: [%[4]s] %[5]s - concept: %[6]s

What the tutor asked:
%[7]s

Student's answer:
%[8]s

Decide how the plan should proceed:
- "continue": the plan is adequate; mark step_completed true if this answer
  shows the step's concept is understood.
- "replan": the plan no longer fits the student's observed performance.
- "end": all steps are completed, or further work is pointless.

Respond in JSON:
{
  "route": "continue" | "replan" | "end",
  "feedback": "one or two sentences for the student",
  "step_completed": false,
  "answer_correct": false
}`

// Evaluator judges the student's answer and routes the workflow.
//
// Thread Safety: Evaluator is safe for concurrent use.
type Evaluator struct {
	caller *StructuredCaller
}

// NewEvaluator creates an evaluator agent.
func NewEvaluator(caller *StructuredCaller) *Evaluator {
	return &Evaluator{caller: caller}
}

// Evaluate judges one answer against the current plan step.
//
// Description:
//
//	Issues one LLM turn and returns the structured routing decision. The
//	caller applies the decision to the plan; Evaluate itself mutates
//	nothing.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	state - The workflow state; state.Plan must have a runnable step.
//	question - The executor's latest message.
//	answer - The student's answer.
//
// Outputs:
//
//	*EvaluatorOutput - The routing decision and feedback.
//	error - ErrNoPlan, ErrNoCurrentStep, ErrAgentOutput, or an LLM error.
func (e *Evaluator) Evaluate(ctx context.Context, state *WorkflowState, question, answer string) (*EvaluatorOutput, error) {
	if state.Plan == nil {
		return nil, ErrNoPlan
	}
	step, _ := state.Plan.CurrentStep()
	if step == nil {
		return nil, ErrNoCurrentStep
	}

	prompt := fmt.Sprintf(evaluatorPrompt,
		state.Goal.Topic,
		state.Plan.Revision,
		describeSteps(state.Plan.Steps),
		step.StepID,
		step.Type,
		step.Concept,
		question,
		answer,
	)

	var out EvaluatorOutput
	if err := e.caller.Call(ctx, "evaluator", state.SessionID, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
