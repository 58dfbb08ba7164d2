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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultHeartbeatInterval is how often a pooled worker heartbeats.
const DefaultHeartbeatInterval = 15 * time.Second

// StoreFactory opens an isolated JobStore handle for one worker.
//
// Description:
//
//	Each background job gets its own persistence handle so job state
//	never shares a connection with the request-serving path.
type StoreFactory func() (JobStore, error)

// WorkerFunc is the body of a background job. The job is already running
// when the function is called and is released when it returns.
type WorkerFunc func(ctx context.Context, job Job) error

// Handle tracks one submitted job.
type Handle struct {
	// JobID identifies the job.
	JobID string

	done chan struct{}

	mu  sync.Mutex
	err error
}

// Done returns a channel closed when the job finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the job's error after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Pool runs background jobs with bounded concurrency.
//
// Description:
//
//	Submit claims the job through a fresh store handle, runs the worker
//	with a heartbeat loop, and releases the lock with the worker's
//	outcome. A worker panic releases the job as failed.
//
// Thread Safety: Pool is safe for concurrent use.
type Pool struct {
	factory  StoreFactory
	sem      *semaphore.Weighted
	interval time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithHeartbeatInterval overrides the worker heartbeat interval.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.interval = d
		}
	}
}

// NewPool creates a worker pool.
//
// Inputs:
//
//	factory - Opens an isolated store handle per job.
//	maxWorkers - Maximum concurrent jobs (must be positive).
//	opts - Configuration options.
//
// Outputs:
//
//	*Pool - The configured pool.
func NewPool(factory StoreFactory, maxWorkers int64, opts ...PoolOption) *Pool {
	p := &Pool{
		factory:  factory,
		sem:      semaphore.NewWeighted(maxWorkers),
		interval: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit claims a pending job and runs it in the background.
//
// Description:
//
//	Blocks until a worker slot is free or the context is canceled. The
//	claim (pending -> running) happens before Submit returns, so a
//	double submit of the same job fails fast with
//	ErrInvalidStateTransition.
//
// Inputs:
//
//	ctx - Context governing both the slot wait and the job run.
//	jobID - The pending job to run.
//	fn - The job body.
//
// Outputs:
//
//	*Handle - Tracks completion.
//	error - ErrPoolClosed, claim errors, or a store factory error.
//
// Thread Safety: This method is safe for concurrent use.
func (p *Pool) Submit(ctx context.Context, jobID string, fn WorkerFunc) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return nil, err
	}

	store, err := p.factory()
	if err != nil {
		p.sem.Release(1)
		p.wg.Done()
		return nil, fmt.Errorf("opening job store: %w", err)
	}

	service := NewService(store)
	if err := service.StartJob(ctx, jobID); err != nil {
		_ = store.Close()
		p.sem.Release(1)
		p.wg.Done()
		return nil, err
	}

	job, err := service.GetJob(ctx, jobID)
	if err != nil {
		_ = store.Close()
		p.sem.Release(1)
		p.wg.Done()
		return nil, err
	}

	handle := &Handle{JobID: jobID, done: make(chan struct{})}

	go p.run(ctx, service, store, job, fn, handle)

	return handle, nil
}

// run executes one claimed job to completion.
func (p *Pool) run(ctx context.Context, service *Service, store JobStore, job Job, fn WorkerFunc, handle *Handle) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer func() { _ = store.Close() }()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeatLoop(heartbeatCtx, service, job.ID)

	var workErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				workErr = fmt.Errorf("worker panic: %v", r)
			}
		}()
		workErr = fn(ctx, job)
	}()

	stopHeartbeat()

	status := JobCompleted
	errMsg := ""
	if workErr != nil {
		status = JobFailed
		errMsg = workErr.Error()
	}

	if err := service.ReleaseLock(ctx, job.ID, status, errMsg); err != nil {
		slog.Error("Job release failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		if workErr == nil {
			workErr = err
		}
	}

	handle.finish(workErr)
}

// heartbeatLoop stamps liveness until the context is canceled.
func (p *Pool) heartbeatLoop(ctx context.Context, service *Service, jobID string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := service.Heartbeat(ctx, jobID); err != nil {
				slog.Warn("Heartbeat failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close waits for running jobs and rejects further submits.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
