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

import "errors"

// Sentinel errors for the agent package.
var (
	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded indicates the session is already in the END state.
	ErrSessionEnded = errors.New("session already ended")

	// ErrSessionInProgress indicates a turn is already being processed.
	ErrSessionInProgress = errors.New("session turn in progress")

	// ErrStaleState indicates a save raced with a concurrent update.
	// Callers must reload the session and retry.
	ErrStaleState = errors.New("stale session state")

	// ErrInvalidSession indicates the session configuration is invalid.
	ErrInvalidSession = errors.New("invalid session configuration")

	// ErrEmptyAnswer indicates a turn was submitted with no student input.
	ErrEmptyAnswer = errors.New("student answer must not be empty")

	// ErrCanceled indicates the turn was canceled via context.
	ErrCanceled = errors.New("turn canceled")

	// ErrNoNode indicates no node is registered for a state.
	ErrNoNode = errors.New("no node registered for state")
)
