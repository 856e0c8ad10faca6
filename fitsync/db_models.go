// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"time"
)

// Storage entity models. Records are kept sidecar-style: the entity payload
// is a JSON after-image, with concurrency and lifecycle metadata alongside.

// Record is a versioned entity row, keyed by (tenant_id, entity, record_id).
// Version starts at 1 on create and increments by exactly 1 on every accepted
// mutation. Rows are soft-deleted, never removed by the sync path.
type Record struct {
	TenantID  string          `db:"tenant_id"`
	Entity    string          `db:"entity"`
	RecordID  string          `db:"record_id"`
	Payload   json.RawMessage `db:"payload"`
	Version   int64           `db:"version"`
	Deleted   bool            `db:"deleted"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Key returns the record's store key.
func (r *Record) Key() RecordKey {
	return RecordKey{TenantID: r.TenantID, Entity: r.Entity, RecordID: r.RecordID}
}

// ChangeLogEntry is an append-only audit row, one per persisted mutation.
// Seq is server-assigned and drives the /api/sync/changes watermark.
type ChangeLogEntry struct {
	Seq       int64           `db:"seq"`
	TenantID  string          `db:"tenant_id"`
	Entity    string          `db:"entity"`
	RecordID  string          `db:"record_id"`
	Operation string          `db:"operation"`
	Data      json.RawMessage `db:"data"` // Snapshot after the mutation; nil for delete
	Actor     string          `db:"actor"`
	Source    string          `db:"source"`
	Timestamp time.Time       `db:"ts"`
}

// TenantMember is a row in the tenant membership table.
type TenantMember struct {
	TenantID    string   `db:"tenant_id"`
	UserID      string   `db:"user_id"`
	Role        string   `db:"role"` // owner, coach, client
	Permissions []string `db:"permissions"`
}

// HasPermission reports whether the membership carries the named permission.
func (m *TenantMember) HasPermission(perm string) bool {
	for _, p := range m.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
