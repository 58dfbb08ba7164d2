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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSnapshot(id string, version uint64) agent.Snapshot {
	return agent.Snapshot{
		ID:      id,
		Student: agent.Student{Name: "Alex", GradeLevel: "7"},
		Goal: agent.Goal{
			Topic:      "fractions",
			Objectives: []string{"compare fractions"},
		},
		NextAction:   agent.StateCheck,
		StepIdx:      1,
		MasteryScore: 0.4,
		PerConcept:   map[string]float64{"fractions": 0.4},
		History: []agent.Turn{
			{Role: "tutor", Content: "What is 1/2 of 8?", State: agent.StatePresent},
		},
		Version: version,
	}
}

func TestSessionRepository_SaveAndLoad(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	snap := testSnapshot("sess-1", 1)
	require.NoError(t, repo.Save(ctx, snap))

	got, err := repo.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Goal.Topic, got.Goal.Topic)
	assert.Equal(t, snap.Version, got.Version)
	assert.Equal(t, snap.MasteryScore, got.MasteryScore)
	assert.Len(t, got.History, 1)
}

func TestSessionRepository_VersionMustFollow(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("sess-1", 1)))
	require.NoError(t, repo.Save(ctx, testSnapshot("sess-1", 2)))

	// Replaying version 2 must lose.
	err := repo.Save(ctx, testSnapshot("sess-1", 2))
	assert.ErrorIs(t, err, agent.ErrStaleState)

	// Skipping ahead must lose too.
	err = repo.Save(ctx, testSnapshot("sess-1", 5))
	assert.ErrorIs(t, err, agent.ErrStaleState)

	got, err := repo.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
}

func TestSessionRepository_ConcurrentSaveSingleWinner(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("sess-1", 1)))

	const rounds = 50
	const writers = 16
	for round := 0; round < rounds; round++ {
		version := uint64(round + 2)
		next := testSnapshot("sess-1", version)

		errs := make(chan error, writers)
		var start sync.WaitGroup
		start.Add(1)
		for i := 0; i < writers; i++ {
			go func() {
				start.Wait()
				errs <- repo.Save(ctx, next)
			}()
		}
		start.Done()

		wins := 0
		for i := 0; i < writers; i++ {
			err := <-errs
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, agent.ErrStaleState)
		}
		require.Equal(t, 1, wins, "round %d: exactly one writer must win", round)

		got, err := repo.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, version, got.Version)
	}
}

func TestSessionRepository_LoadMissing(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))

	_, err := repo.Load(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, agent.ErrSessionNotFound)
}

func TestSessionRepository_SaveRejectsEmptyID(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))

	err := repo.Save(context.Background(), agent.Snapshot{Version: 1})
	assert.ErrorIs(t, err, agent.ErrInvalidSession)
}

func TestSessionRepository_Delete(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("sess-1", 1)))
	require.NoError(t, repo.Delete(ctx, "sess-1"))

	_, err := repo.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, agent.ErrSessionNotFound)

	// Deleting again is fine.
	assert.NoError(t, repo.Delete(ctx, "sess-1"))
}

func TestSessionRepository_ListSessionIDs(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("sess-b", 1)))
	require.NoError(t, repo.Save(ctx, testSnapshot("sess-a", 1)))

	ids, err := repo.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-a", "sess-b"}, ids)
}

func TestSessionRepository_RehydratesSession(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSnapshot("sess-1", 1)))

	snap, err := repo.Load(ctx, "sess-1")
	require.NoError(t, err)

	sess, err := agent.FromSnapshot(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, agent.StateCheck, sess.GetNextAction())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
