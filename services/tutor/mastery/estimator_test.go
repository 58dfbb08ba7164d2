// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mastery

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUpdate_CorrectAnswer(t *testing.T) {
	tests := []struct {
		name         string
		current      float64
		confidence   float64
		learningRate float64
		want         float64
	}{
		{"from zero", 0.0, 1.0, 0.2, 0.2},
		{"diminishing near one", 0.9, 1.0, 0.2, 0.92},
		{"half confidence", 0.5, 0.5, 0.2, 0.55},
		{"at ceiling", 1.0, 1.0, 0.2, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Update(tt.current, true, tt.confidence, tt.learningRate)
			if !almostEqual(got, tt.want) {
				t.Errorf("Update(%v, true, %v, %v) = %v, want %v",
					tt.current, tt.confidence, tt.learningRate, got, tt.want)
			}
		})
	}
}

func TestUpdate_IncorrectAnswer(t *testing.T) {
	tests := []struct {
		name         string
		current      float64
		confidence   float64
		learningRate float64
		want         float64
	}{
		{"half-weighted penalty", 0.5, 1.0, 0.2, 0.45},
		{"at floor", 0.0, 1.0, 0.2, 0.0},
		{"preserves partial progress", 0.8, 1.0, 0.2, 0.72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Update(tt.current, false, tt.confidence, tt.learningRate)
			if !almostEqual(got, tt.want) {
				t.Errorf("Update(%v, false, %v, %v) = %v, want %v",
					tt.current, tt.confidence, tt.learningRate, got, tt.want)
			}
		})
	}
}

func TestUpdate_AlwaysInBounds(t *testing.T) {
	// Sweep a grid of inputs, including out-of-range mastery values that a
	// corrupted record could produce.
	currents := []float64{-0.5, 0.0, 0.25, 0.5, 0.75, 1.0, 1.5}
	confidences := []float64{0.0, 0.3, 0.7, 1.0}
	rates := []float64{0.05, 0.2, 0.5, 1.0}

	for _, cur := range currents {
		for _, conf := range confidences {
			for _, rate := range rates {
				for _, correct := range []bool{true, false} {
					got := Update(cur, correct, conf, rate)
					if got < 0.0 || got > 1.0 {
						t.Fatalf("Update(%v, %v, %v, %v) = %v, out of [0,1]",
							cur, correct, conf, rate, got)
					}
				}
			}
		}
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	a := Update(0.37, true, 0.81, 0.2)
	b := Update(0.37, true, 0.81, 0.2)
	if a != b {
		t.Errorf("Update not deterministic: %v != %v", a, b)
	}
}

func TestEMA(t *testing.T) {
	tests := []struct {
		name        string
		previous    float64
		observation float64
		alpha       float64
		want        float64
	}{
		{"default alpha", 0.5, 1.0, 0.4, 0.7},
		{"alpha zero keeps previous", 0.5, 1.0, 0.0, 0.5},
		{"alpha one takes observation", 0.5, 1.0, 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EMA(tt.previous, tt.observation, tt.alpha)
			if !almostEqual(got, tt.want) {
				t.Errorf("EMA(%v, %v, %v) = %v, want %v",
					tt.previous, tt.observation, tt.alpha, got, tt.want)
			}
		})
	}
}

func TestOverallMastery(t *testing.T) {
	tests := []struct {
		name      string
		estimates map[string]float64
		weights   map[string]float64
		want      float64
	}{
		{"empty input", nil, nil, 0.0},
		{"unweighted mean", map[string]float64{"a": 0.4, "b": 0.8}, nil, 0.6},
		{
			"weighted mean",
			map[string]float64{"a": 0.4, "b": 0.8},
			map[string]float64{"a": 1.0, "b": 3.0},
			0.7,
		},
		{
			"zero weight sum",
			map[string]float64{"a": 0.4},
			map[string]float64{"a": 0.0},
			0.0,
		},
		{
			"missing weight counts as zero",
			map[string]float64{"a": 0.4, "b": 0.8},
			map[string]float64{"b": 2.0},
			0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverallMastery(tt.estimates, tt.weights)
			if !almostEqual(got, tt.want) {
				t.Errorf("OverallMastery() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimator_ObserveAndSnapshot(t *testing.T) {
	e := NewEstimator(0.2)

	got := e.Observe("fractions", true, 1.0)
	if !almostEqual(got, 0.2) {
		t.Fatalf("Observe = %v, want 0.2", got)
	}

	snap := e.Snapshot()
	snap["fractions"] = 0.99
	if !almostEqual(e.Estimate("fractions"), 0.2) {
		t.Error("Snapshot mutation leaked into estimator")
	}
}

func TestEstimator_InvalidLearningRateFallsBack(t *testing.T) {
	e := NewEstimator(-1.0)
	got := e.Observe("x", true, 1.0)
	if !almostEqual(got, DefaultLearningRate) {
		t.Errorf("Observe with fallback rate = %v, want %v", got, DefaultLearningRate)
	}
}

func TestEstimator_RestoreClamps(t *testing.T) {
	e := NewEstimator(0.2)
	e.Restore(map[string]float64{"a": 1.7, "b": -0.3})
	if e.Estimate("a") != 1.0 {
		t.Errorf("Restore did not clamp high value: %v", e.Estimate("a"))
	}
	if e.Estimate("b") != 0.0 {
		t.Errorf("Restore did not clamp low value: %v", e.Estimate("b"))
	}
}
