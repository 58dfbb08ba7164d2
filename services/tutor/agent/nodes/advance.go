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

// AdvanceNode folds a correct answer into the mastery estimate and decides
// whether the session continues or ends.
//
// Description:
//
//	Pure bookkeeping, no LLM call. The grading score is folded into the
//	session mastery estimate with an exponential moving average and into
//	the per-concept estimates as a correct observation. The routing
//	decision uses the updated mastery and the step count before the
//	increment: the session ends when the step budget is spent or mastery
//	reaches the completion threshold, otherwise the step counter
//	increments and the turn continues to PRESENT.
//
// Thread Safety: AdvanceNode is stateless and safe for concurrent use.
type AdvanceNode struct{}

// NewAdvanceNode creates an advance node.
func NewAdvanceNode() *AdvanceNode {
	return &AdvanceNode{}
}

// Name implements agent.NodeExecutor.
func (n *AdvanceNode) Name() string {
	return "advance"
}

// Execute implements agent.NodeExecutor.
func (n *AdvanceNode) Execute(ctx context.Context, rawDeps any, ts *agent.TurnState) (agent.TutorState, error) {
	deps, err := depsFrom(rawDeps)
	if err != nil {
		return ts.Current, err
	}
	if ts.LastGrading == nil {
		return ts.Current, fmt.Errorf("advance: no grading result for turn %s", ts.TurnID)
	}

	grading := ts.LastGrading

	alpha := mastery.DefaultEMAAlpha
	learningRate := mastery.DefaultLearningRate
	if ts.Config != nil {
		alpha = ts.Config.EMAAlpha
		learningRate = ts.Config.LearningRate
	}

	ts.MasteryScore = mastery.EMA(ts.MasteryScore, grading.Score, alpha)

	labels := grading.Labels
	if len(labels) == 0 {
		labels = []string{ts.Goal.Topic}
	}
	for _, label := range labels {
		ts.PerConcept[label] = mastery.Update(ts.PerConcept[label], true, grading.Confidence, learningRate)
	}

	mastered := ts.MasteryScore >= mastery.CompletionThreshold
	budgetSpent := ts.StepIdx >= mastery.MaxSteps

	if ts.Evaluation != nil {
		if mastered {
			ts.Evaluation.MasterySignal = agent.SignalMastered
		} else {
			ts.Evaluation.MasterySignal = agent.SignalAdvancing
		}
	}

	logEvent(deps, ts, n.Name(), "mastery_update",
		fmt.Sprintf("mastery=%.3f step=%d mastered=%t budget_spent=%t",
			ts.MasteryScore, ts.StepIdx, mastered, budgetSpent))

	if mastered || budgetSpent {
		return agent.StateEnd, nil
	}

	ts.StepIdx++
	return agent.StatePresent, nil
}
