// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"time"
)

// REST/JSON models for the sync HTTP API.
// The push request/response shapes mirror what the mobile clients submit;
// result entries flatten the echoed operation alongside the server-assigned
// fields, so `succeeded` entries look like {...operation, serverVersion, ...}.

// PushRequest is a batch of client-made changes submitted to /api/sync/push.
type PushRequest struct {
	Operations []SyncOperation `json:"operations"`
}

// SyncOperation is a single client-generated change. It is never persisted
// as-is; only its effect on the named record is.
type SyncOperation struct {
	ID         string          `json:"id"`                // Client-generated operation id
	Type       string          `json:"type"`              // create, update, delete
	Entity     string          `json:"entity"`            // workout, exercise, set, user
	EntityID   string          `json:"entityId"`          // Target record id
	Payload    json.RawMessage `json:"payload,omitempty"` // JSON object (absent for delete)
	Timestamp  string          `json:"timestamp"`         // Client clock, ISO-8601
	RetryCount int             `json:"retryCount"`        // Client-side delivery attempts
	TenantID   string          `json:"tenantId"`          // Tenant the client believes it is writing to
}

// PushResponse partitions the batch into three outcome lists. Every submitted
// operation lands in exactly one of them.
type PushResponse struct {
	Succeeded []OperationSuccess  `json:"succeeded"`
	Conflicts []OperationConflict `json:"conflicts"`
	Failed    []OperationFailure  `json:"failed"`
}

// OperationSuccess echoes an applied operation plus the server-assigned
// version and timestamp.
type OperationSuccess struct {
	SyncOperation
	ServerVersion   int64     `json:"serverVersion"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

// OperationConflict echoes a rejected operation plus the detected conflict.
// Resolution (merge, overwrite, prompt) is entirely the client's business;
// the server only detects and reports.
type OperationConflict struct {
	SyncOperation
	Conflict Conflict `json:"conflict"`
}

// Conflict carries both sides of a detected write conflict. Never persisted.
type Conflict struct {
	Type       string          `json:"type"` // concurrent_creation, update_conflict
	LocalData  json.RawMessage `json:"localData,omitempty"`
	ServerData json.RawMessage `json:"serverData,omitempty"`
}

// OperationFailure echoes a failed operation plus an error string.
type OperationFailure struct {
	SyncOperation
	Error string `json:"error"`
}

// ChangesResponse is the paged change-log feed returned by /api/sync/changes.
type ChangesResponse struct {
	Changes   []ChangeDownload `json:"changes"`
	HasMore   bool             `json:"hasMore"`
	NextAfter int64            `json:"nextAfter"` // Pass as ?after= on the next page
}

// ChangeDownload is a single change-log entry in the feed.
type ChangeDownload struct {
	Seq       int64           `json:"seq"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entityId"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"` // Snapshot; null for delete
	TenantID  string          `json:"tenantId"`
	Actor     string          `json:"actor"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// SchemaVersionResponse reports the wire schema version.
type SchemaVersionResponse struct {
	Version int `json:"schemaVersion"`
}

// ErrorResponse is the request-level error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// ValidationIssue points at a single request-shape violation.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}
