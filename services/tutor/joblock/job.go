// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package joblock manages the lock lifecycle of long-running background
// jobs: claim, heartbeat, release, and stale-job reaping.
package joblock

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	// JobPending is the initial state: created but not yet claimed.
	JobPending JobStatus = "pending"

	// JobRunning means exactly one worker owns the job.
	JobRunning JobStatus = "running"

	// JobCompleted is a terminal success state.
	JobCompleted JobStatus = "completed"

	// JobFailed is a terminal failure state.
	JobFailed JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one background unit of work.
type Job struct {
	// ID uniquely identifies the job.
	ID string `json:"id"`

	// Kind names the work the job performs (e.g. "content_ingest").
	Kind string `json:"kind"`

	// Status is the lifecycle state.
	Status JobStatus `json:"status"`

	// Error holds the failure reason for failed jobs.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job was claimed.
	StartedAt time.Time `json:"started_at,omitzero"`

	// HeartbeatAt is the last liveness signal from the owning worker.
	HeartbeatAt time.Time `json:"heartbeat_at,omitzero"`

	// CompletedAt is when the job reached a terminal status.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// ValidTransition reports whether the lifecycle allows from -> to.
//
// The allowed transitions are:
//
//	pending → running    (startJob)
//	running → completed  (releaseLock)
//	running → failed     (releaseLock)
//	pending → failed     (releaseLock after a crash between claim and run)
func ValidTransition(from, to JobStatus) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobFailed
	case JobRunning:
		return to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

// JobStore persists jobs.
//
// Description:
//
//	SetJobStatus is the single mutation primitive and must be
//	compare-and-swap on the source status: a call whose from status does
//	not match the stored status fails with ErrInvalidStateTransition and
//	changes nothing. This is what makes job ownership single-writer.
type JobStore interface {
	// CreateJob persists a new job. Fails with ErrJobExists on ID reuse.
	CreateJob(ctx context.Context, job Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (Job, error)

	// SetJobStatus transitions a job from one status to another,
	// recording an error message for failures. The transition must also
	// be legal per ValidTransition.
	SetJobStatus(ctx context.Context, jobID string, from, to JobStatus, errMsg string) error

	// UpdateHeartbeat stamps the job's heartbeat without changing status.
	UpdateHeartbeat(ctx context.Context, jobID string, at time.Time) error

	// ListJobs returns jobs with the given status; all jobs when status
	// is empty.
	ListJobs(ctx context.Context, status JobStatus) ([]Job, error)

	// Close releases the store handle.
	Close() error
}
