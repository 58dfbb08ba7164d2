// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agentlog provides a bounded, thread-safe execution log keyed by
// session.
//
// Every component of the tutoring core records its decisions here for later
// inspection. Each session keeps at most a fixed number of entries (default
// 200); older entries are dropped oldest-first. Entries are immutable once
// added and readers always receive copies, never live references.
//
// Thread Safety:
//
//	Store is safe for concurrent use. The single mutex guards in-memory
//	list mutation only; no I/O or LLM call executes while it is held.
package agentlog

import (
	"sync"
	"time"
)

// DefaultMaxLogs is the per-session entry cap.
const DefaultMaxLogs = 200

// Entry is one immutable log record of an agent decision.
type Entry struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// TurnID identifies the turn this entry belongs to.
	TurnID string `json:"turn_id,omitempty"`

	// AgentName is the component that produced the entry
	// (present, check, diagnose, remediate, advance, planner, executor,
	// evaluator, joblock).
	AgentName string `json:"agent_name"`

	// EventType describes what happened (llm_call, transition, grading,
	// fallback, job_transition, ...).
	EventType string `json:"event_type"`

	// InputSummary is a short description of the input.
	InputSummary string `json:"input_summary,omitempty"`

	// Output is the produced output, possibly truncated by the caller.
	Output string `json:"output,omitempty"`

	// Reasoning carries the model's rationale when one was returned.
	Reasoning string `json:"reasoning,omitempty"`

	// Duration is how long the recorded operation took.
	Duration time.Duration `json:"duration,omitempty"`

	// Prompt is the prompt sent to the model, when applicable.
	Prompt string `json:"prompt,omitempty"`

	// Model is the model identifier used, when applicable.
	Model string `json:"model,omitempty"`

	// Metadata holds free-form key/value context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Stats contains aggregate counters for monitoring.
type Stats struct {
	// Sessions is the number of distinct sessions with entries.
	Sessions int `json:"sessions"`

	// Entries is the total number of retained entries.
	Entries int `json:"entries"`

	// MaxPerSession is the configured per-session cap.
	MaxPerSession int `json:"max_per_session"`
}

// Filter restricts GetLogs results. Zero-value fields match everything.
type Filter struct {
	// TurnID restricts results to one turn when non-empty.
	TurnID string

	// AgentName restricts results to one agent when non-empty.
	AgentName string
}

// Store is a bounded in-memory log store keyed by session ID.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*ringBuffer[Entry]
	maxLogs  int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxLogs overrides the per-session entry cap.
//
// Inputs:
//
//	max - The cap; values <= 0 fall back to DefaultMaxLogs.
func WithMaxLogs(max int) StoreOption {
	return func(s *Store) {
		if max > 0 {
			s.maxLogs = max
		}
	}
}

// NewStore creates an empty log store.
//
// Outputs:
//
//	*Store - The ready-to-use store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*ringBuffer[Entry]),
		maxLogs:  DefaultMaxLogs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddLog appends an entry to its session's log.
//
// Description:
//
//	Appends under the store mutex and truncates the session's log to the
//	most recent maxLogs entries, dropping oldest first. Entries with an
//	empty SessionID are ignored.
//
// Inputs:
//
//	entry - The entry to record. A zero Timestamp is stamped with now.
func (s *Store) AddLog(entry Entry) {
	if entry.SessionID == "" {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[entry.SessionID]
	if !ok {
		buf = newRingBuffer[Entry](s.maxLogs)
		s.sessions[entry.SessionID] = buf
	}
	buf.Push(entry)
}

// GetLogs returns a filtered copy of a session's entries, oldest first.
//
// Inputs:
//
//	sessionID - The session to read.
//	filter - Optional restriction on turn and agent.
//
// Outputs:
//
//	[]Entry - Matching entries; never a live reference to store internals.
func (s *Store) GetLogs(sessionID string, filter Filter) []Entry {
	s.mu.Lock()
	buf, ok := s.sessions[sessionID]
	var items []Entry
	if ok {
		items = buf.Items()
	}
	s.mu.Unlock()

	if filter.TurnID == "" && filter.AgentName == "" {
		return items
	}

	out := make([]Entry, 0, len(items))
	for _, e := range items {
		if filter.TurnID != "" && e.TurnID != filter.TurnID {
			continue
		}
		if filter.AgentName != "" && e.AgentName != filter.AgentName {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GetRecentLogs returns a copy of the most recent limit entries, oldest
// first.
func (s *Store) GetRecentLogs(sessionID string, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return buf.Tail(limit)
}

// ClearSession removes all entries for a session.
func (s *Store) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// GetStats returns aggregate counters for monitoring.
//
// Outputs:
//
//	Stats - Distinct session count, total retained entries, and the cap.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, buf := range s.sessions {
		total += buf.Len()
	}
	return Stats{
		Sessions:      len(s.sessions),
		Entries:       total,
		MaxPerSession: s.maxLogs,
	}
}
