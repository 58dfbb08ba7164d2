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
	"context"
	"fmt"
	"sort"
	"sync"
)

// NodeExecutor executes one node of the tutor graph.
//
// Description:
//
//	A node reads and mutates the working TurnState for the current turn
//	and returns the next state. Nodes never touch the session directly;
//	the router commits the turn when the loop pauses or ends.
type NodeExecutor interface {
	// Execute runs the node against the working turn state.
	Execute(ctx context.Context, deps any, ts *TurnState) (TutorState, error)

	// Name returns the node name.
	Name() string
}

// NodeRegistry provides access to node implementations.
type NodeRegistry interface {
	// GetNode returns the node implementation for a state.
	GetNode(state TutorState) (NodeExecutor, bool)
}

// DefaultNodeRegistry implements NodeRegistry.
//
// Description:
//
//	DefaultNodeRegistry maps TutorState values to NodeExecutor
//	implementations. It provides thread-safe access to registered nodes.
//
// Thread Safety: DefaultNodeRegistry is safe for concurrent use.
type DefaultNodeRegistry struct {
	mu    sync.RWMutex
	nodes map[TutorState]NodeExecutor
}

// NewNodeRegistry creates a new node registry.
//
// Description:
//
//	Creates an empty registry. Use Register() to add nodes.
//
// Outputs:
//
//	*DefaultNodeRegistry - The new registry.
func NewNodeRegistry() *DefaultNodeRegistry {
	return &DefaultNodeRegistry{
		nodes: make(map[TutorState]NodeExecutor),
	}
}

// Register adds a node executor for a state.
//
// Description:
//
//	Associates a NodeExecutor with a TutorState. The executor is called
//	when the router enters that state. Overwrites any previously
//	registered executor for the state.
//
// Inputs:
//
//	state - The state to register the node for.
//	executor - The node executor.
//
// Thread Safety: This method is safe for concurrent use.
func (r *DefaultNodeRegistry) Register(state TutorState, executor NodeExecutor) {
	if executor == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[state] = executor
}

// GetNode implements NodeRegistry.
//
// Inputs:
//
//	state - The state to get the node for.
//
// Outputs:
//
//	NodeExecutor - The node executor, or nil if not found.
//	bool - True if a node was found.
//
// Thread Safety: This method is safe for concurrent use.
func (r *DefaultNodeRegistry) GetNode(state TutorState) (NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.nodes[state]
	return executor, ok
}

// MustGetNode returns the node for a state or panics.
//
// Description:
//
//	Like GetNode but panics if no node is registered. Use only when
//	you know the node must exist.
//
// Inputs:
//
//	state - The state to get the node for.
//
// Outputs:
//
//	NodeExecutor - The node executor.
//
// Thread Safety: This method is safe for concurrent use.
func (r *DefaultNodeRegistry) MustGetNode(state TutorState) NodeExecutor {
	node, ok := r.GetNode(state)
	if !ok {
		panic(fmt.Sprintf("no node registered for state %s", state))
	}
	return node
}

// States returns all registered states in sorted order.
//
// Outputs:
//
//	[]TutorState - All registered states, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *DefaultNodeRegistry) States() []TutorState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]TutorState, 0, len(r.nodes))
	for state := range r.nodes {
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return string(states[i]) < string(states[j])
	})

	return states
}

// Count returns the number of registered nodes.
//
// Thread Safety: This method is safe for concurrent use.
func (r *DefaultNodeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
