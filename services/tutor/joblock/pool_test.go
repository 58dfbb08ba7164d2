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
	"sync/atomic"
	"testing"
	"time"
)

// sharedStoreFactory hands the same MemoryJobStore to every worker. The
// isolation the factory models matters for real backends; for tests one
// shared in-memory store keeps assertions simple.
func sharedStoreFactory(store *MemoryJobStore) StoreFactory {
	return func() (JobStore, error) { return store, nil }
}

func TestPool_SubmitRunsJob(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 2)
	defer pool.Close()

	job, _ := svc.CreateJob(context.Background(), "ingest")

	var ran atomic.Bool
	handle, err := pool.Submit(context.Background(), job.ID, func(_ context.Context, got Job) error {
		if got.ID != job.ID {
			t.Errorf("worker job ID = %s, want %s", got.ID, job.ID)
		}
		if got.Status != JobRunning {
			t.Errorf("worker sees status %s, want running", got.Status)
		}
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-handle.Done()
	if handle.Err() != nil {
		t.Fatalf("handle error: %v", handle.Err())
	}
	if !ran.Load() {
		t.Error("worker never ran")
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != JobCompleted {
		t.Errorf("final status = %s, want completed", final.Status)
	}
}

func TestPool_WorkerErrorFailsJob(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 1)
	defer pool.Close()

	job, _ := svc.CreateJob(context.Background(), "ingest")

	wantErr := errors.New("ingest blew up")
	handle, err := pool.Submit(context.Background(), job.ID, func(context.Context, Job) error {
		return wantErr
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-handle.Done()
	if !errors.Is(handle.Err(), wantErr) {
		t.Errorf("handle error = %v, want %v", handle.Err(), wantErr)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != JobFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
	if final.Error != wantErr.Error() {
		t.Errorf("recorded error = %q, want %q", final.Error, wantErr.Error())
	}
}

func TestPool_PanicReleasesAsFailed(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 1)
	defer pool.Close()

	job, _ := svc.CreateJob(context.Background(), "ingest")

	handle, err := pool.Submit(context.Background(), job.ID, func(context.Context, Job) error {
		panic("worker bug")
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-handle.Done()
	if handle.Err() == nil {
		t.Fatal("expected a panic error")
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != JobFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
}

func TestPool_DoubleSubmitFailsFast(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 2)
	defer pool.Close()

	job, _ := svc.CreateJob(context.Background(), "ingest")

	release := make(chan struct{})
	handle, err := pool.Submit(context.Background(), job.ID, func(context.Context, Job) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	_, err = pool.Submit(context.Background(), job.ID, func(context.Context, Job) error { return nil })
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("second Submit error = %v, want ErrInvalidStateTransition", err)
	}

	close(release)
	<-handle.Done()
}

func TestPool_SubmitUnknownJob(t *testing.T) {
	store := NewMemoryJobStore()
	pool := NewPool(sharedStoreFactory(store), 1)
	defer pool.Close()

	_, err := pool.Submit(context.Background(), "missing", func(context.Context, Job) error { return nil })
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 1)
	defer pool.Close()

	first, _ := svc.CreateJob(context.Background(), "ingest")
	second, _ := svc.CreateJob(context.Background(), "ingest")

	release := make(chan struct{})
	h1, err := pool.Submit(context.Background(), first.ID, func(context.Context, Job) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// The only slot is held, so the second submit must block until the
	// context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Submit(ctx, second.ID, func(context.Context, Job) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("blocked Submit error = %v, want DeadlineExceeded", err)
	}

	close(release)
	<-h1.Done()

	h2, err := pool.Submit(context.Background(), second.ID, func(context.Context, Job) error { return nil })
	if err != nil {
		t.Fatalf("Submit after slot freed: %v", err)
	}
	<-h2.Done()
}

func TestPool_HeartbeatWhileRunning(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 1, WithHeartbeatInterval(time.Millisecond))
	defer pool.Close()

	job, _ := svc.CreateJob(context.Background(), "ingest")

	var initial time.Time
	handle, err := pool.Submit(context.Background(), job.ID, func(ctx context.Context, j Job) error {
		initial = j.HeartbeatAt
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-handle.Done()

	final, _ := store.GetJob(context.Background(), job.ID)
	if !final.HeartbeatAt.After(initial) {
		t.Error("heartbeat loop never advanced HeartbeatAt")
	}
}

func TestPool_CloseRejectsSubmit(t *testing.T) {
	store := NewMemoryJobStore()
	svc := NewService(store)
	pool := NewPool(sharedStoreFactory(store), 1)

	job, _ := svc.CreateJob(context.Background(), "ingest")
	handle, err := pool.Submit(context.Background(), job.ID, func(context.Context, Job) error { return nil })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	pool.Close()
	<-handle.Done()

	if _, err := pool.Submit(context.Background(), job.ID, func(context.Context, Job) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close: error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_FactoryError(t *testing.T) {
	factoryErr := errors.New("badger unavailable")
	pool := NewPool(func() (JobStore, error) { return nil, factoryErr }, 1)
	defer pool.Close()

	_, err := pool.Submit(context.Background(), "j1", func(context.Context, Job) error { return nil })
	if !errors.Is(err, factoryErr) {
		t.Errorf("error = %v, want factory error", err)
	}
}
