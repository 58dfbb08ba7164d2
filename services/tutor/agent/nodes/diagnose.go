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
	"time"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
	"github.com/AleutianAI/AleutianMentor/services/tutor/mastery"
)

// DiagnoseNode records misconception evidence after remediation.
//
// Description:
//
//	Pure bookkeeping, no LLM call. Applies the failed grading result to
//	the per-concept estimates, appends one evidence item, and marks the
//	evaluation as needing practice. Falls back to the goal topic when the
//	grader produced no concept labels.
//
// Thread Safety: DiagnoseNode is stateless and safe for concurrent use.
type DiagnoseNode struct{}

// NewDiagnoseNode creates a diagnose node.
func NewDiagnoseNode() *DiagnoseNode {
	return &DiagnoseNode{}
}

// Name implements agent.NodeExecutor.
func (n *DiagnoseNode) Name() string {
	return "diagnose"
}

// Execute implements agent.NodeExecutor.
func (n *DiagnoseNode) Execute(ctx context.Context, rawDeps any, ts *agent.TurnState) (agent.TutorState, error) {
	deps, err := depsFrom(rawDeps)
	if err != nil {
		return ts.Current, err
	}
	if ts.LastGrading == nil {
		return ts.Current, fmt.Errorf("diagnose: no grading result for turn %s", ts.TurnID)
	}

	grading := ts.LastGrading
	labels := grading.Labels
	if len(labels) == 0 {
		labels = []string{ts.Goal.Topic}
	}

	learningRate := mastery.DefaultLearningRate
	if ts.Config != nil {
		learningRate = ts.Config.LearningRate
	}

	for _, label := range labels {
		ts.PerConcept[label] = mastery.Update(ts.PerConcept[label], false, grading.Confidence, learningRate)
	}

	ts.AppendEvidence(agent.EvidenceItem{
		TurnID:     ts.TurnID,
		Labels:     labels,
		Score:      grading.Score,
		Confidence: grading.Confidence,
		Timestamp:  time.Now(),
	})

	if ts.Evaluation != nil {
		ts.Evaluation.MasterySignal = agent.SignalNeedsPractice
	}

	logEvent(deps, ts, n.Name(), "evidence",
		fmt.Sprintf("labels=%v score=%.2f", labels, grading.Score))

	return agent.StatePresent, nil
}
