// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package joblock

import "errors"

var (
	// ErrInvalidStateTransition indicates a job status change that the
	// lifecycle does not allow.
	ErrInvalidStateTransition = errors.New("invalid job state transition")

	// ErrJobNotFound indicates the job ID does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists indicates a job with the same ID already exists.
	ErrJobExists = errors.New("job already exists")

	// ErrPoolClosed indicates a submit against a shut-down worker pool.
	ErrPoolClosed = errors.New("worker pool closed")
)
