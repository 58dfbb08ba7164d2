// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"sync"
)

// StateMachine manages valid state transitions for the tutor loop.
//
// The state machine enforces the following transition graph:
//
//	IDLE → PRESENT               : Session opened
//	PRESENT → CHECK              : Question delivered, awaiting answer
//	CHECK → ADVANCE              : Answer graded correct
//	CHECK → REMEDIATE            : Answer graded incorrect
//	REMEDIATE → DIAGNOSE         : Remediation delivered
//	DIAGNOSE → PRESENT           : Misconception recorded
//	ADVANCE → PRESENT            : Mastery updated, continue
//	ADVANCE → END                : Step budget spent or topic mastered
//
// There is no error state. A failed turn is discarded and the session
// stays on its previous pending action.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[TutorState]map[TutorState]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
//
// Outputs:
//
//	*StateMachine - Configured state machine
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[TutorState]map[TutorState]bool),
	}

	// Initialize all states with empty transition maps
	for _, state := range AllStates() {
		sm.transitions[state] = make(map[TutorState]bool)
	}

	// Define valid transitions
	sm.addTransition(StateIdle, StatePresent)

	sm.addTransition(StatePresent, StateCheck)

	sm.addTransition(StateCheck, StateAdvance)
	sm.addTransition(StateCheck, StateRemediate)

	sm.addTransition(StateRemediate, StateDiagnose)

	sm.addTransition(StateDiagnose, StatePresent)

	sm.addTransition(StateAdvance, StatePresent)
	sm.addTransition(StateAdvance, StateEnd)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to TutorState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Inputs:
//
//	from - Current state
//	to - Target state
//
// Outputs:
//
//	bool - True if the transition is valid
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to TutorState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Step validates a transition in the working turn state and applies it.
//
// Inputs:
//
//	ts - The turn state to advance
//	to - Target state
//
// Outputs:
//
//	error - ErrInvalidTransition if transition not allowed
func (sm *StateMachine) Step(ts *TurnState, to TutorState) error {
	if !sm.CanTransition(ts.Current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ts.Current, to)
	}
	ts.Current = to
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
//
// Inputs:
//
//	from - The source state
//
// Outputs:
//
//	[]TutorState - All valid target states
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from TutorState) []TutorState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []TutorState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
//
// Inputs:
//
//	from - Source state
//	to - Target state
//
// Outputs:
//
//	string - Description of why this transition occurs
func (sm *StateMachine) TransitionReason(from, to TutorState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"IDLE->PRESENT":       "Session opened",
		"PRESENT->CHECK":      "Question delivered, awaiting answer",
		"CHECK->ADVANCE":      "Answer graded correct",
		"CHECK->REMEDIATE":    "Answer graded incorrect",
		"REMEDIATE->DIAGNOSE": "Remediation delivered",
		"DIAGNOSE->PRESENT":   "Misconception recorded",
		"ADVANCE->PRESENT":    "Mastery updated, continue",
		"ADVANCE->END":        "Step budget spent or topic mastered",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()

// CanTransition is a convenience function using the default state machine.
func CanTransition(from, to TutorState) bool {
	return DefaultStateMachine.CanTransition(from, to)
}
