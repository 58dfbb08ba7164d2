// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/mastery"
)

// CheckNode grades the student's latest answer and routes on the result.
//
// Description:
//
//	Sends the pending question and the student's answer to the LLM grader
//	and parses the structured grading result. A score at or above the
//	advance threshold routes to ADVANCE; anything below routes to
//	REMEDIATE. The boundary counts as correct.
//
// Thread Safety: CheckNode is stateless and safe for concurrent use.
type CheckNode struct{}

// NewCheckNode creates a check node.
func NewCheckNode() *CheckNode {
	return &CheckNode{}
}

// Name implements agent.NodeExecutor.
func (n *CheckNode) Name() string {
	return "check"
}

// Execute implements agent.NodeExecutor.
func (n *CheckNode) Execute(ctx context.Context, rawDeps any, ts *agent.TurnState) (agent.TutorState, error) {
	deps, err := depsFrom(rawDeps)
	if err != nil {
		return ts.Current, err
	}
	if ts.Answer == "" {
		return ts.Current, agent.ErrEmptyAnswer
	}

	question := lastTutorMessage(ts)
	prompt := fmt.Sprintf(resolveTemplate(deps, PromptCheck, defaultCheckPrompt),
		ts.Goal.Topic,
		describeObjectives(ts.Goal),
		question,
		ts.Answer,
	)

	var grading agent.GradingResult
	if err := generateJSON(ctx, deps, ts, n.Name(), prompt, &grading); err != nil {
		return ts.Current, err
	}

	grading.Score = mastery.Clamp01(grading.Score)
	grading.Confidence = mastery.Clamp01(grading.Confidence)
	ts.LastGrading = &grading

	correct := grading.Correct(mastery.AdvanceThreshold)
	ts.Evaluation = &agent.EvaluationOutput{
		Feedback:      grading.Rationale,
		AnswerCorrect: correct,
	}

	logEvent(deps, ts, n.Name(), "grading",
		fmt.Sprintf("score=%.2f correct=%t labels=%v", grading.Score, correct, grading.Labels))

	if correct {
		return agent.StateAdvance, nil
	}
	return agent.StateRemediate, nil
}
