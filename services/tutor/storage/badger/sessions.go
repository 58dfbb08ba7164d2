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

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMentor/services/tutor/agent"
)

const sessionKeyPrefix = "session:"

// SessionRepository persists session snapshots in BadgerDB.
//
// Description:
//
//	Implements agent.SessionRepository with optimistic concurrency: a
//	snapshot is accepted only if its version immediately follows the
//	stored version (or is the first version for a new session). The
//	check and the write happen in one transaction, so concurrent saves
//	of the same session cannot both win.
//
// Thread Safety: SessionRepository is safe for concurrent use.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a repository over an open database.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// Save implements agent.SessionRepository.
//
// Outputs:
//
//	error - agent.ErrStaleState when the snapshot lost a concurrent
//	update, agent.ErrInvalidSession for malformed snapshots, or a
//	storage error.
func (r *SessionRepository) Save(ctx context.Context, snap agent.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("%w: snapshot missing session ID", agent.ErrInvalidSession)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	key := sessionKey(snap.ID)
	err = r.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			// First save for this session.
		case err != nil:
			return fmt.Errorf("read session %s: %w", snap.ID, err)
		default:
			var stored agent.Snapshot
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("decode session %s: %w", snap.ID, err)
			}
			if snap.Version != stored.Version+1 {
				return fmt.Errorf("%w: session %s version %d does not follow stored %d",
					agent.ErrStaleState, snap.ID, snap.Version, stored.Version)
			}
		}
		return txn.Set(key, data)
	})

	// A commit conflict means another save of this session landed
	// between our read and commit, which is the same race the version
	// check guards.
	if errors.Is(err, badgerdb.ErrConflict) {
		return fmt.Errorf("%w: session %s lost a concurrent update", agent.ErrStaleState, snap.ID)
	}
	return err
}

// Load implements agent.SessionRepository.
//
// Outputs:
//
//	agent.Snapshot - The stored snapshot.
//	error - agent.ErrSessionNotFound when no snapshot exists.
func (r *SessionRepository) Load(ctx context.Context, sessionID string) (agent.Snapshot, error) {
	var snap agent.Snapshot
	err := r.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", agent.ErrSessionNotFound, sessionID)
		}
		if err != nil {
			return fmt.Errorf("read session %s: %w", sessionID, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return agent.Snapshot{}, err
	}
	return snap, nil
}

// Delete removes a stored snapshot. Deleting a missing session is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
}

// ListSessionIDs returns the IDs of all stored sessions, sorted.
func (r *SessionRepository) ListSessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(sessionKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(sessionKeyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
