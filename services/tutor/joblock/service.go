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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultReleaseRetries is how many attempts a failure-recording
	// release makes in total before delegating to the reaper.
	DefaultReleaseRetries = 2

	// DefaultReleaseBackoff is the delay between release attempts.
	DefaultReleaseBackoff = 1 * time.Second
)

// Service manages the job lock lifecycle against a JobStore.
//
// Thread Safety: Service is safe for concurrent use; ownership of a job's
// running state is single-writer by the store's compare-and-swap.
type Service struct {
	store JobStore

	releaseRetries int
	releaseBackoff time.Duration

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithReleaseRetries overrides the total release attempt count.
func WithReleaseRetries(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.releaseRetries = n
		}
	}
}

// WithReleaseBackoff overrides the delay between release attempts.
func WithReleaseBackoff(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d >= 0 {
			s.releaseBackoff = d
		}
	}
}

// NewService creates a job lock service over a store.
//
// Inputs:
//
//	store - The job persistence backend.
//	opts - Configuration options.
//
// Outputs:
//
//	*Service - The configured service.
func NewService(store JobStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		releaseRetries: DefaultReleaseRetries,
		releaseBackoff: DefaultReleaseBackoff,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob registers a new pending job.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	kind - What the job does.
//
// Outputs:
//
//	Job - The created job in pending status.
//	error - Non-nil on persistence failure.
func (s *Service) CreateJob(ctx context.Context, kind string) (Job, error) {
	job := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return Job{}, err
	}
	slog.Info("Job created", slog.String("job_id", job.ID), slog.String("kind", kind))
	return job, nil
}

// StartJob claims a pending job.
//
// Description:
//
//	Transitions pending -> running and stamps the heartbeat. Fails with
//	ErrInvalidStateTransition if the job is not currently pending, which
//	includes the case where another worker already claimed it.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	jobID - The job to claim.
//
// Outputs:
//
//	error - ErrJobNotFound, ErrInvalidStateTransition, or a store error.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) StartJob(ctx context.Context, jobID string) error {
	if err := s.store.SetJobStatus(ctx, jobID, JobPending, JobRunning, ""); err != nil {
		return err
	}
	slog.Info("Job started", slog.String("job_id", jobID))
	return nil
}

// Heartbeat signals that the owning worker is still alive.
//
// Description:
//
//	Updates heartbeat_at without changing status. Idempotent and safe to
//	retry.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) Heartbeat(ctx context.Context, jobID string) error {
	return s.store.UpdateHeartbeat(ctx, jobID, time.Now())
}

// ReleaseLock moves a job to a terminal status.
//
// Description:
//
//	Transitions running -> completed|failed, or pending -> failed (the
//	claim-then-crash case). Any other source status is rejected with
//	ErrInvalidStateTransition.
//
//	When recording a failed status itself fails with a transient store
//	error, the write is retried after a short backoff up to the
//	configured attempt count. If every attempt fails the job is left in
//	its prior state for the stale-job reaper to reclaim, and the last
//	error is returned.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	jobID - The job to release.
//	status - JobCompleted or JobFailed.
//	errMsg - The failure reason; ignored for completed.
//
// Outputs:
//
//	error - ErrInvalidStateTransition for illegal transitions, or the last
//	store error after exhausted retries.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Service) ReleaseLock(ctx context.Context, jobID string, status JobStatus, errMsg string) error {
	if status != JobCompleted && status != JobFailed {
		return fmt.Errorf("%w: release target must be terminal, got %s", ErrInvalidStateTransition, status)
	}

	attempts := 1
	if status == JobFailed {
		attempts = s.releaseRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.sleep(s.releaseBackoff)
		}

		err := s.store.SetJobStatus(ctx, jobID, JobRunning, status, errMsg)
		if err == nil {
			slog.Info("Job released",
				slog.String("job_id", jobID),
				slog.String("status", string(status)),
			)
			return nil
		}
		if errors.Is(err, ErrInvalidStateTransition) && status == JobFailed {
			// The worker may have crashed between claiming and marking
			// running; pending -> failed covers that window.
			if pendErr := s.store.SetJobStatus(ctx, jobID, JobPending, status, errMsg); pendErr == nil {
				slog.Info("Job released from pending",
					slog.String("job_id", jobID),
				)
				return nil
			} else if errors.Is(pendErr, ErrInvalidStateTransition) {
				return pendErr
			} else {
				lastErr = pendErr
				continue
			}
		}
		if errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrJobNotFound) {
			return err
		}
		lastErr = err
	}

	slog.Warn("Job release exhausted retries, delegating to reaper",
		slog.String("job_id", jobID),
		slog.String("error", lastErr.Error()),
	)
	return lastErr
}

// GetJob retrieves a job.
func (s *Service) GetJob(ctx context.Context, jobID string) (Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs filtered by status; all jobs when status is empty.
func (s *Service) ListJobs(ctx context.Context, status JobStatus) ([]Job, error) {
	return s.store.ListJobs(ctx, status)
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}
