// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// outcomeKind classifies a single applied operation.
type outcomeKind int

const (
	outcomeSucceeded outcomeKind = iota
	outcomeConflict
	outcomeFailed
)

// applyOutcome is the internal result of one operation against the store.
type applyOutcome struct {
	kind     outcomeKind
	version  int64
	serverTS time.Time
	conflict *Conflict
	errMsg   string
	mutated  bool            // A row was persisted; drives the change-log side effect
	snapshot []byte          // Stored after-image for the change log (nil for delete)
	changeOp string          // Operation kind recorded in the change log
}

func outcomeOK(rec *Record, changeOp string, snapshot []byte) applyOutcome {
	return applyOutcome{
		kind:     outcomeSucceeded,
		version:  rec.Version,
		serverTS: rec.UpdatedAt,
		mutated:  true,
		snapshot: snapshot,
		changeOp: changeOp,
	}
}

func outcomeNoop() applyOutcome {
	return applyOutcome{kind: outcomeSucceeded, serverTS: time.Now().UTC()}
}

func outcomeConflicted(conflictType string, local, server []byte) applyOutcome {
	return applyOutcome{
		kind:     outcomeConflict,
		conflict: &Conflict{Type: conflictType, LocalData: local, ServerData: server},
	}
}

func outcomeError(msg string) applyOutcome {
	return applyOutcome{kind: outcomeFailed, errMsg: msg}
}

// applyOperation runs the three-case state machine for one operation. The
// entity schema supplies everything kind-specific; control flow is shared.
// Storage errors are confined here and reported as a failed outcome, never
// propagated as an error to the reconciler loop.
func (s *Service) applyOperation(ctx context.Context, caller Caller, schema *EntitySchema, op SyncOperation) applyOutcome {
	if schema.SelfOnly && op.EntityID != caller.UserID {
		return outcomeError(MsgAccessDenied)
	}
	if schema.UpdateOnly && op.Type != OpUpdate {
		return outcomeError(fmt.Sprintf("Operation %s not supported for entity %s", op.Type, schema.Name))
	}

	key := RecordKey{TenantID: caller.TenantID, Entity: schema.Name, RecordID: op.EntityID}

	switch op.Type {
	case OpCreate:
		return s.applyCreate(ctx, schema, key, op)
	case OpUpdate:
		if !schema.Versioned {
			return s.applyProfileUpdate(ctx, schema, key, op)
		}
		return s.applyUpdate(ctx, schema, key, op)
	case OpDelete:
		return s.applyDelete(ctx, key)
	default:
		// Unreachable behind request validation; kept for direct library callers.
		return outcomeError(fmt.Sprintf("Unknown operation type: %s", op.Type))
	}
}

// applyCreate inserts with version 1, or reports concurrent_creation when the
// id already exists. The stored record is never touched on conflict.
func (s *Service) applyCreate(ctx context.Context, schema *EntitySchema, key RecordKey, op SyncOperation) applyOutcome {
	norm, err := normalizePayload(schema, op.Payload)
	if err != nil {
		return outcomeError(fmt.Sprintf("Invalid payload: %v", err))
	}

	rec := &Record{
		TenantID: key.TenantID,
		Entity:   key.Entity,
		RecordID: key.RecordID,
		Payload:  norm.Data,
		Version:  1,
	}
	inserted, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.logger.Error("Record insert failed", "entity", key.Entity, "record_id", key.RecordID, "error", err)
		return outcomeError(MsgStorageFailed)
	}
	if !inserted {
		existing, err := s.store.Get(ctx, key)
		if err != nil {
			s.logger.Error("Conflict fetch failed", "entity", key.Entity, "record_id", key.RecordID, "error", err)
			return outcomeError(MsgStorageFailed)
		}
		return outcomeConflicted(ConflictConcurrentCreation, op.Payload, existing.Payload)
	}
	return outcomeOK(rec, OpCreate, norm.Data)
}

// applyUpdate applies a versioned update through the store's
// compare-and-increment. A payload version strictly below the stored version
// is a conflict; a payload without a version applies unconditionally. An
// update of a missing record is deliberately reinterpreted as a create so
// offline created-then-edited records can arrive out of order.
func (s *Service) applyUpdate(ctx context.Context, schema *EntitySchema, key RecordKey, op SyncOperation) applyOutcome {
	norm, err := normalizePayload(schema, op.Payload)
	if err != nil {
		return outcomeError(fmt.Sprintf("Invalid payload: %v", err))
	}

	maxExpected := int64(-1)
	if norm.HasVersion {
		maxExpected = norm.ClientVersion
	}

	rec, ok, err := s.store.UpdateVersioned(ctx, key, maxExpected, norm.Data, false)
	if errors.Is(err, ErrRecordNotFound) {
		return s.applyCreate(ctx, schema, key, op)
	}
	if err != nil {
		s.logger.Error("Versioned update failed", "entity", key.Entity, "record_id", key.RecordID, "error", err)
		return outcomeError(MsgStorageFailed)
	}
	if !ok {
		existing, err := s.store.Get(ctx, key)
		if err != nil {
			s.logger.Error("Conflict fetch failed", "entity", key.Entity, "record_id", key.RecordID, "error", err)
			return outcomeError(MsgStorageFailed)
		}
		return outcomeConflicted(ConflictUpdate, op.Payload, existing.Payload)
	}
	return outcomeOK(rec, OpUpdate, norm.Data)
}

// applyProfileUpdate is the narrower user-profile path: listed fields are
// overwritten unconditionally, with no version gate and no conflicts.
func (s *Service) applyProfileUpdate(ctx context.Context, schema *EntitySchema, key RecordKey, op SyncOperation) applyOutcome {
	var existingPayload []byte
	existing, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		existingPayload = existing.Payload
	case errors.Is(err, ErrRecordNotFound):
		// First write creates the profile row.
	default:
		s.logger.Error("Profile fetch failed", "record_id", key.RecordID, "error", err)
		return outcomeError(MsgStorageFailed)
	}

	merged, err := mergeProfileFields(schema, existingPayload, op.Payload)
	if err != nil {
		return outcomeError(fmt.Sprintf("Invalid payload: %v", err))
	}

	rec, err := s.store.Upsert(ctx, &Record{
		TenantID: key.TenantID,
		Entity:   key.Entity,
		RecordID: key.RecordID,
		Payload:  merged,
	})
	if err != nil {
		s.logger.Error("Profile upsert failed", "record_id", key.RecordID, "error", err)
		return outcomeError(MsgStorageFailed)
	}
	return outcomeOK(rec, OpUpdate, merged)
}

// applyDelete soft-deletes and increments version. Deleting a missing record
// is an idempotent no-op success; deletes never conflict.
func (s *Service) applyDelete(ctx context.Context, key RecordKey) applyOutcome {
	rec, err := s.store.SoftDelete(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return outcomeNoop()
	}
	if err != nil {
		s.logger.Error("Soft delete failed", "entity", key.Entity, "record_id", key.RecordID, "error", err)
		return outcomeError(MsgStorageFailed)
	}
	out := outcomeOK(rec, OpDelete, nil)
	return out
}
