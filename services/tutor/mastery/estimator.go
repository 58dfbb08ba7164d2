// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mastery implements the per-concept mastery scoring model.
//
// The model is a confidence-weighted delta rule with diminishing returns:
//
//	correct:   delta = (1 - current) * learningRate * confidence
//	incorrect: delta = -current * learningRate * confidence * 0.5
//
// The incorrect penalty is half-weighted relative to the reward so a single
// failed check preserves partial progress instead of zeroing it. All
// functions in this package are pure and deterministic.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package mastery

// Contract constants shared with the turn router and the plan workflow.
// These values are part of the external compatibility contract and must
// not drift between components.
const (
	// MaxSteps is the maximum number of teaching steps in a session.
	MaxSteps = 10

	// AdvanceThreshold is the minimum grading score that routes a check
	// to ADVANCE instead of REMEDIATE.
	AdvanceThreshold = 0.8

	// CompletionThreshold is the session-level mastery score at which a
	// session completes without exhausting its step budget.
	CompletionThreshold = 0.85

	// DefaultEMAAlpha is the smoothing factor for the turn-level session
	// mastery score. Distinct from the per-concept learning rate.
	DefaultEMAAlpha = 0.4

	// DefaultLearningRate is the default per-concept learning rate.
	DefaultLearningRate = 0.2
)

// Update combines a single turn's grading outcome into a running mastery
// estimate.
//
// Description:
//
//	Applies the confidence-weighted delta rule and clamps the result to
//	[0.0, 1.0]. Gains diminish as mastery approaches 1.0; losses are
//	half-weighted so partial progress survives a failed check.
//
// Inputs:
//
//	current - The current mastery estimate (0.0-1.0).
//	correct - Whether the student's answer was graded correct.
//	confidence - The grader's confidence in its judgment (0.0-1.0).
//	learningRate - The per-concept learning rate (0.0-1.0).
//
// Outputs:
//
//	float64 - The updated estimate, always within [0.0, 1.0].
func Update(current float64, correct bool, confidence, learningRate float64) float64 {
	var delta float64
	if correct {
		delta = (1 - current) * learningRate * confidence
	} else {
		delta = -current * learningRate * confidence * 0.5
	}
	return Clamp01(current + delta)
}

// EMA folds a new observation into a running exponential moving average.
//
// Inputs:
//
//	previous - The running average.
//	observation - The new observation.
//	alpha - Smoothing factor; higher values weight the observation more.
//
// Outputs:
//
//	float64 - The updated average, clamped to [0.0, 1.0].
func EMA(previous, observation, alpha float64) float64 {
	return Clamp01(alpha*observation + (1-alpha)*previous)
}

// OverallMastery aggregates per-concept estimates into a single score.
//
// Description:
//
//	Returns the unweighted mean when weights is nil or empty, otherwise a
//	weighted mean using the weight for each concept (missing weights count
//	as 0). Returns 0.0 for empty input or a zero weight sum; this function
//	never divides by zero.
//
// Inputs:
//
//	estimates - Per-concept mastery estimates.
//	weights - Optional per-concept weights; nil selects the unweighted mean.
//
// Outputs:
//
//	float64 - The aggregate mastery score (0.0-1.0).
func OverallMastery(estimates map[string]float64, weights map[string]float64) float64 {
	if len(estimates) == 0 {
		return 0.0
	}

	if len(weights) == 0 {
		var sum float64
		for _, v := range estimates {
			sum += v
		}
		return Clamp01(sum / float64(len(estimates)))
	}

	var sum, weightSum float64
	for concept, v := range estimates {
		w := weights[concept]
		sum += v * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0.0
	}
	return Clamp01(sum / weightSum)
}

// Clamp01 clamps a value to the closed interval [0.0, 1.0].
func Clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Estimator tracks per-concept mastery estimates with a fixed learning rate.
//
// Description:
//
//	A thin stateful wrapper over Update for callers that accumulate
//	estimates across turns (the diagnose node). The zero value is not
//	usable; use NewEstimator.
//
// Thread Safety: Estimator is NOT safe for concurrent use; callers must
// synchronize (the owning session serializes turn execution).
type Estimator struct {
	learningRate float64
	estimates    map[string]float64
}

// NewEstimator creates an estimator with the given learning rate.
//
// Inputs:
//
//	learningRate - Per-concept learning rate; values outside (0, 1] fall
//	back to DefaultLearningRate.
//
// Outputs:
//
//	*Estimator - The ready-to-use estimator.
func NewEstimator(learningRate float64) *Estimator {
	if learningRate <= 0 || learningRate > 1 {
		learningRate = DefaultLearningRate
	}
	return &Estimator{
		learningRate: learningRate,
		estimates:    make(map[string]float64),
	}
}

// Observe records one graded outcome for a concept.
//
// Inputs:
//
//	concept - The concept identifier.
//	correct - Whether the answer was graded correct.
//	confidence - The grader's confidence (0.0-1.0).
//
// Outputs:
//
//	float64 - The updated estimate for the concept.
func (e *Estimator) Observe(concept string, correct bool, confidence float64) float64 {
	updated := Update(e.estimates[concept], correct, confidence, e.learningRate)
	e.estimates[concept] = updated
	return updated
}

// Estimate returns the current estimate for a concept (0.0 if unseen).
func (e *Estimator) Estimate(concept string) float64 {
	return e.estimates[concept]
}

// Snapshot returns a copy of all per-concept estimates.
//
// Outputs:
//
//	map[string]float64 - A copy; mutations do not affect the estimator.
func (e *Estimator) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(e.estimates))
	for k, v := range e.estimates {
		out[k] = v
	}
	return out
}

// Restore replaces the estimator's state with the given estimates.
//
// Description:
//
//	Used when rehydrating a session from the repository. Values are
//	clamped to [0.0, 1.0].
func (e *Estimator) Restore(estimates map[string]float64) {
	e.estimates = make(map[string]float64, len(estimates))
	for k, v := range estimates {
		e.estimates[k] = Clamp01(v)
	}
}
