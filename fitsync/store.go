// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"errors"
)

// Storage sentinels for error mapping with errors.Is.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrNotMember      = errors.New("not a tenant member")
)

// RecordKey identifies a versioned entity row.
type RecordKey struct {
	TenantID string
	Entity   string
	RecordID string
}

// RecordStore is the storage seam for the reconciler. The write primitives
// are atomic: Insert is insert-if-absent and UpdateVersioned is a
// single-statement compare-and-increment, so conflict detection never relies
// on a separate read-then-write pair under concurrent writers.
type RecordStore interface {
	// Get returns the record or ErrRecordNotFound.
	Get(ctx context.Context, key RecordKey) (*Record, error)

	// Insert stores rec with version 1 if no row exists for its key.
	// Returns false (and no error) when the key already exists.
	Insert(ctx context.Context, rec *Record) (bool, error)

	// UpdateVersioned replaces the payload and deleted flag and increments
	// version by 1, but only while version <= maxExpected. A negative
	// maxExpected applies unconditionally. Returns the updated record and
	// true on success, (nil, false, nil) when the row exists but the version
	// gate failed, or ErrRecordNotFound when the row is absent.
	UpdateVersioned(ctx context.Context, key RecordKey, maxExpected int64, payload []byte, deleted bool) (*Record, bool, error)

	// SoftDelete marks the row deleted and increments version. Returns
	// ErrRecordNotFound when the row is absent. Never conflicts.
	SoftDelete(ctx context.Context, key RecordKey) (*Record, error)

	// Upsert overwrites the payload unconditionally, inserting with version 1
	// or incrementing the existing version. Used by the user-profile path,
	// which does not participate in version conflict detection.
	Upsert(ctx context.Context, rec *Record) (*Record, error)

	// AppendChange appends an audit row and assigns entry.Seq.
	AppendChange(ctx context.Context, entry *ChangeLogEntry) error

	// ChangesAfter returns up to limit entries with seq > after for the
	// tenant, in ascending seq order.
	ChangesAfter(ctx context.Context, tenantID string, after int64, limit int) ([]ChangeLogEntry, error)

	// Member returns the membership row or ErrNotMember.
	Member(ctx context.Context, tenantID, userID string) (*TenantMember, error)

	// UpsertMember creates or replaces a membership row. Used by the
	// invitation/administration surface, not by the sync path.
	UpsertMember(ctx context.Context, member *TenantMember) error
}
