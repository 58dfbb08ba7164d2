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
	"log/slog"
	"time"
)

const (
	// DefaultHeartbeatTTL is how stale a running job's heartbeat may be
	// before the reaper reclaims it.
	DefaultHeartbeatTTL = 2 * time.Minute

	// DefaultReapInterval is how often the reaper scans.
	DefaultReapInterval = 30 * time.Second
)

// Reaper reclaims jobs whose workers stopped heartbeating.
//
// Description:
//
//	A running job whose heartbeat is older than the TTL is marked failed
//	with a heartbeat-timeout error. This is the delegate for release
//	attempts that exhausted their retries.
//
// Thread Safety: Reaper is safe for concurrent use.
type Reaper struct {
	store    JobStore
	ttl      time.Duration
	interval time.Duration

	// onReaped is invoked after a scan that reclaimed jobs. Optional.
	onReaped func(ctx context.Context, count int)

	// now is swappable for tests.
	now func() time.Time
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithHeartbeatTTL overrides the staleness threshold.
func WithHeartbeatTTL(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithReapInterval overrides the scan interval.
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithOnReaped registers a callback invoked with the count of jobs a
// scan reclaimed. Used for metrics.
func WithOnReaped(fn func(ctx context.Context, count int)) ReaperOption {
	return func(r *Reaper) {
		r.onReaped = fn
	}
}

// NewReaper creates a stale-job reaper over a store.
func NewReaper(store JobStore, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		ttl:      DefaultHeartbeatTTL,
		interval: DefaultReapInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReapOnce scans for stale running jobs and fails them.
//
// Outputs:
//
//	int - How many jobs were reclaimed.
//	error - Non-nil if the scan itself failed; per-job failures are
//	logged and skipped.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	running, err := r.store.ListJobs(ctx, JobRunning)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.ttl)
	reaped := 0
	for _, job := range running {
		if job.HeartbeatAt.After(cutoff) {
			continue
		}

		err := r.store.SetJobStatus(ctx, job.ID, JobRunning, JobFailed, "heartbeat timeout")
		if err != nil {
			// The owner may have released it between the scan and here.
			slog.Debug("Reap skipped",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		slog.Warn("Reaped stale job",
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.Time("last_heartbeat", job.HeartbeatAt),
		)
		reaped++
	}

	if reaped > 0 && r.onReaped != nil {
		r.onReaped(ctx, reaped)
	}
	return reaped, nil
}

// Run scans on an interval until the context is canceled.
//
// Thread Safety: This method is safe for concurrent use, though one
// running reaper per store is enough.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Job reaper running",
		slog.Duration("ttl", r.ttl),
		slog.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Job reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				slog.Error("Reap scan failed", slog.String("error", err.Error()))
			}
		}
	}
}
