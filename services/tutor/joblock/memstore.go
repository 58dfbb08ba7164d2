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
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryJobStore is an in-memory JobStore for tests and single-process use.
//
// Thread Safety: MemoryJobStore is safe for concurrent use.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job

	// failSetStatus, when non-nil, is returned by SetJobStatus to
	// simulate transient persistence failures in tests.
	failSetStatus error
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

// FailNextSetStatus makes every following SetJobStatus call fail with err
// until called again with nil.
func (s *MemoryJobStore) FailNextSetStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSetStatus = err
}

// CreateJob implements JobStore.
func (s *MemoryJobStore) CreateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob implements JobStore.
func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// SetJobStatus implements JobStore.
func (s *MemoryJobStore) SetJobStatus(_ context.Context, jobID string, from, to JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSetStatus != nil {
		return s.failSetStatus
	}

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != from || !ValidTransition(from, to) {
		return fmt.Errorf("%w: %s: %s -> %s (current %s)",
			ErrInvalidStateTransition, jobID, from, to, job.Status)
	}

	now := time.Now()
	job.Status = to
	switch to {
	case JobRunning:
		job.StartedAt = now
		job.HeartbeatAt = now
	case JobCompleted, JobFailed:
		job.CompletedAt = now
		job.Error = errMsg
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateHeartbeat implements JobStore.
func (s *MemoryJobStore) UpdateHeartbeat(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job.HeartbeatAt = at
	s.jobs[jobID] = job
	return nil
}

// ListJobs implements JobStore.
func (s *MemoryJobStore) ListJobs(_ context.Context, status JobStatus) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close implements JobStore.
func (s *MemoryJobStore) Close() error {
	return nil
}
