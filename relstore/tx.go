package relstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tx is a compensating-rollback wrapper around kv.Store, which has no
// native multi-key transaction primitive. Every write Tx performs is
// applied to the underlying store immediately; Tx records the inverse of
// each write so that Rollback can undo them in reverse order on failure.
// This mirrors spec.md §5's acknowledged gap: the archive write happens
// inside the logical transaction but outside any real DB rollback scope,
// and the engine compensates rather than relying on atomicity it cannot
// have against a flat kv.Store.
type Tx struct {
	ctx   context.Context
	store *Store
	undo  []func(context.Context) error
	done  bool
}

// Begin starts a new Tx against s.
func (s *Store) Begin(ctx context.Context) *Tx {
	return &Tx{ctx: ctx, store: s}
}

// Commit finalizes the Tx. Since every write already landed in the store,
// Commit only discards the rollback log.
func (tx *Tx) Commit() error {
	tx.done = true
	tx.undo = nil
	return nil
}

// Rollback replays the recorded inverse operations in reverse order. It is
// safe to call after Commit (a no-op) and safe to call multiple times.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	var firstErr error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](tx.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	tx.undo = nil
	return firstErr
}

// putJSON marshals value, writes it under key unconditionally, and records
// an inverse operation that restores whatever was there before (or deletes
// the key, if it didn't exist).
func (tx *Tx) putJSON(key string, value any) error {
	priorValue, priorVersion, existed, err := tx.store.kv.Get(tx.ctx, key)
	if err != nil {
		return fmt.Errorf("relstore: read before write %s: %w", key, err)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("relstore: encode %s: %w", key, err)
	}
	if err := tx.store.kv.Put(tx.ctx, key, -1, string(encoded)); err != nil {
		return fmt.Errorf("relstore: write %s: %w", key, err)
	}

	tx.undo = append(tx.undo, func(ctx context.Context) error {
		if !existed {
			_, err := tx.store.kv.Delete(ctx, key, -1)
			return err
		}
		return tx.store.kv.Put(ctx, key, priorVersion, priorValue)
	})
	return nil
}

// deleteKey deletes key and records an inverse operation that restores its
// previous value if it existed; a no-op inverse if it did not.
func (tx *Tx) deleteKey(key string) error {
	priorValue, priorVersion, existed, err := tx.store.kv.Get(tx.ctx, key)
	if err != nil {
		return fmt.Errorf("relstore: read before delete %s: %w", key, err)
	}
	if !existed {
		return nil
	}
	if _, err := tx.store.kv.Delete(tx.ctx, key, -1); err != nil {
		return fmt.Errorf("relstore: delete %s: %w", key, err)
	}
	tx.undo = append(tx.undo, func(ctx context.Context) error {
		return tx.store.kv.Put(ctx, key, priorVersion, priorValue)
	})
	return nil
}
