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

// PresentNode generates the next teaching segment and check question.
//
// Description:
//
//	Renders the session context (goal, student, progress, trailing
//	conversation) into the presentation prompt and asks the LLM for a
//	teaching message ending in exactly one question. The message is
//	appended to the pending history and the turn pauses at CHECK.
//
// Thread Safety: PresentNode is stateless and safe for concurrent use.
type PresentNode struct{}

// NewPresentNode creates a present node.
func NewPresentNode() *PresentNode {
	return &PresentNode{}
}

// Name implements agent.NodeExecutor.
func (n *PresentNode) Name() string {
	return "present"
}

// Execute implements agent.NodeExecutor.
func (n *PresentNode) Execute(ctx context.Context, rawDeps any, ts *agent.TurnState) (agent.TutorState, error) {
	deps, err := depsFrom(rawDeps)
	if err != nil {
		return ts.Current, err
	}

	remediationContext := ""
	if ts.Remediation != nil {
		remediationContext = "The student just struggled. Build on the re-explanation you gave:\n" +
			ts.Remediation.Message + "\n"
	}

	history := append(append([]agent.Turn{}, ts.PriorHistory...), ts.NewHistory...)
	prompt := fmt.Sprintf(resolveTemplate(deps, PromptPresent, defaultPresentPrompt),
		ts.Goal.Topic,
		describeStudent(ts.Student),
		describeObjectives(ts.Goal),
		ts.StepIdx,
		mastery.MaxSteps,
		ts.MasteryScore,
		renderHistory(history),
		remediationContext,
	)

	var out agent.TeachingOutput
	if err := generateJSON(ctx, deps, ts, n.Name(), prompt, &out); err != nil {
		return ts.Current, err
	}
	if out.ExpectedAnswerForm == "" {
		out.ExpectedAnswerForm = agent.AnswerFreeText
	}

	ts.Teaching = &out
	appendTutorTurn(ts, agent.StatePresent, out.Message)

	return agent.StateCheck, nil
}
