// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

// Operation type constants for sync operations
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Entity kind constants
const (
	EntityWorkout  = "workout"
	EntityExercise = "exercise"
	EntitySet      = "set"
	EntityUser     = "user"
)

// Conflict type constants
const (
	ConflictConcurrentCreation = "concurrent_creation"
	ConflictUpdate             = "update_conflict"
)

// Failure messages reported in the "failed" partition. These are part of the
// wire contract; clients match on them.
const (
	MsgTenantAccessDenied = "Tenant access denied"
	MsgAccessDenied       = "Access denied"
	MsgStorageFailed      = "Database operation failed"
	MsgBatchTooLarge      = "Batch too large"
	MsgInternalError      = "Internal error"
)

// Permission constants checked against tenant membership
const (
	PermSyncPush = "sync:push"
	PermSyncPull = "sync:pull"
)
