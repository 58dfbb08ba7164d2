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
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

// RemediateNode generates a scaffolded re-explanation after a failed check.
//
// Description:
//
//	Uses the grading rationale and concept labels to ask the LLM for a
//	different, simpler explanation of the idea the student missed. The
//	re-explanation is appended to the pending history and the turn
//	continues to DIAGNOSE.
//
// Thread Safety: RemediateNode is stateless and safe for concurrent use.
type RemediateNode struct{}

// NewRemediateNode creates a remediate node.
func NewRemediateNode() *RemediateNode {
	return &RemediateNode{}
}

// Name implements agent.NodeExecutor.
func (n *RemediateNode) Name() string {
	return "remediate"
}

// Execute implements agent.NodeExecutor.
func (n *RemediateNode) Execute(ctx context.Context, rawDeps any, ts *agent.TurnState) (agent.TutorState, error) {
	deps, err := depsFrom(rawDeps)
	if err != nil {
		return ts.Current, err
	}

	rationale := ""
	labels := "(none identified)"
	if ts.LastGrading != nil {
		rationale = ts.LastGrading.Rationale
		if len(ts.LastGrading.Labels) > 0 {
			labels = strings.Join(ts.LastGrading.Labels, ", ")
		}
	}

	prompt := fmt.Sprintf(resolveTemplate(deps, PromptRemediate, defaultRemediatePrompt),
		ts.Goal.Topic,
		lastTutorMessage(ts),
		ts.Answer,
		rationale,
		labels,
	)

	var out agent.TeachingOutput
	if err := generateJSON(ctx, deps, ts, n.Name(), prompt, &out); err != nil {
		return ts.Current, err
	}
	out.ExpectedAnswerForm = agent.AnswerFreeText

	ts.Remediation = &out
	appendTutorTurn(ts, agent.StateRemediate, out.Message)

	return agent.StateDiagnose, nil
}
