// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMentor/services/tutor/joblock"
)

const jobKeyPrefix = "job:"

// JobStore persists job records in BadgerDB.
//
// Description:
//
//	Implements joblock.JobStore. Status changes are compare-and-swap:
//	the expected source status is re-read inside the write transaction,
//	so two workers racing to claim the same pending job cannot both
//	succeed.
//
// Thread Safety: JobStore is safe for concurrent use.
type JobStore struct {
	db *DB
}

// NewJobStore creates a job store over an open database. The caller
// retains ownership of the database handle.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// NewJobStoreFactory returns a joblock.StoreFactory handing each worker
// its own store value over the shared database. Badger permits one open
// handle per directory, so isolation between workers and the request
// path comes from per-store transactions, not separate handles.
func NewJobStoreFactory(db *DB) joblock.StoreFactory {
	return func() (joblock.JobStore, error) {
		return NewJobStore(db), nil
	}
}

func jobKey(id string) []byte {
	return []byte(jobKeyPrefix + id)
}

func (s *JobStore) readJob(txn *badgerdb.Txn, jobID string) (joblock.Job, error) {
	item, err := txn.Get(jobKey(jobID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return joblock.Job{}, fmt.Errorf("%w: %s", joblock.ErrJobNotFound, jobID)
	}
	if err != nil {
		return joblock.Job{}, fmt.Errorf("read job %s: %w", jobID, err)
	}

	var job joblock.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return joblock.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *JobStore) writeJob(txn *badgerdb.Txn, job joblock.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return txn.Set(jobKey(job.ID), data)
}

// CreateJob implements joblock.JobStore.
func (s *JobStore) CreateJob(ctx context.Context, job joblock.Job) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(jobKey(job.ID)); err == nil {
			return fmt.Errorf("%w: %s", joblock.ErrJobExists, job.ID)
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("read job %s: %w", job.ID, err)
		}
		return s.writeJob(txn, job)
	})
}

// GetJob implements joblock.JobStore.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (joblock.Job, error) {
	var job joblock.Job
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var err error
		job, err = s.readJob(txn, jobID)
		return err
	})
	if err != nil {
		return joblock.Job{}, err
	}
	return job, nil
}

// SetJobStatus implements joblock.JobStore.
func (s *JobStore) SetJobStatus(ctx context.Context, jobID string, from, to joblock.JobStatus, errMsg string) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		job, err := s.readJob(txn, jobID)
		if err != nil {
			return err
		}
		if job.Status != from || !joblock.ValidTransition(from, to) {
			return fmt.Errorf("%w: %s: %s -> %s (current %s)",
				joblock.ErrInvalidStateTransition, jobID, from, to, job.Status)
		}

		now := time.Now()
		job.Status = to
		switch to {
		case joblock.JobRunning:
			job.StartedAt = now
			job.HeartbeatAt = now
		case joblock.JobCompleted, joblock.JobFailed:
			job.CompletedAt = now
			job.Error = errMsg
		}
		return s.writeJob(txn, job)
	})
}

// UpdateHeartbeat implements joblock.JobStore.
func (s *JobStore) UpdateHeartbeat(ctx context.Context, jobID string, at time.Time) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		job, err := s.readJob(txn, jobID)
		if err != nil {
			return err
		}
		job.HeartbeatAt = at
		return s.writeJob(txn, job)
	})
}

// ListJobs implements joblock.JobStore. Jobs are returned sorted by ID;
// an empty status matches all jobs.
func (s *JobStore) ListJobs(ctx context.Context, status joblock.JobStatus) ([]joblock.Job, error) {
	var jobs []joblock.Job
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(jobKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var job joblock.Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("decode job %s: %w", it.Item().Key(), err)
			}
			if status == "" || job.Status == status {
				jobs = append(jobs, job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// Close implements joblock.JobStore. The database handle belongs to the
// caller, so closing a store is a no-op.
func (s *JobStore) Close() error {
	return nil
}
