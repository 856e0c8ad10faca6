// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func validOp() SyncOperation {
	return makeOp(OpCreate, EntityWorkout, "w1", workoutPayload("Leg day"))
}

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}
	return paths
}

func TestValidateRequest_ValidBatch(t *testing.T) {
	req := &PushRequest{Operations: []SyncOperation{
		validOp(),
		makeOp(OpDelete, EntityWorkout, "w2", nil),
	}}
	require.Empty(t, ValidateRequest(req))
}

func TestValidateRequest_MissingOperationsArray(t *testing.T) {
	issues := ValidateRequest(&PushRequest{})
	require.Len(t, issues, 1)
	require.Equal(t, "operations", issues[0].Path)
}

// An explicitly empty array is a valid (if pointless) request.
func TestValidateRequest_EmptyOperationsArray(t *testing.T) {
	require.Empty(t, ValidateRequest(&PushRequest{Operations: []SyncOperation{}}))
}

func TestValidateRequest_RequiredFields(t *testing.T) {
	op := SyncOperation{Type: "upsert", RetryCount: -1}
	issues := ValidateRequest(&PushRequest{Operations: []SyncOperation{op}})

	paths := issuePaths(issues)
	require.Contains(t, paths, "operations[0].id")
	require.Contains(t, paths, "operations[0].type")
	require.Contains(t, paths, "operations[0].entity")
	require.Contains(t, paths, "operations[0].entityId")
	require.Contains(t, paths, "operations[0].tenantId")
	require.Contains(t, paths, "operations[0].timestamp")
	require.Contains(t, paths, "operations[0].retryCount")
}

func TestValidateRequest_TimestampMustBeISO8601(t *testing.T) {
	op := validOp()
	op.Timestamp = "31/08/2026 10:00"
	issues := ValidateRequest(&PushRequest{Operations: []SyncOperation{op}})
	require.Len(t, issues, 1)
	require.Equal(t, "operations[0].timestamp", issues[0].Path)

	// A plain date is accepted.
	op.Timestamp = "2026-08-31"
	require.Empty(t, ValidateRequest(&PushRequest{Operations: []SyncOperation{op}}))
}

func TestValidateRequest_PayloadShapePerOperationType(t *testing.T) {
	create := validOp()
	create.Payload = nil
	issues := ValidateRequest(&PushRequest{Operations: []SyncOperation{create}})
	require.Len(t, issues, 1)
	require.Equal(t, "operations[0].payload", issues[0].Path)

	update := validOp()
	update.Type = OpUpdate
	update.Payload = json.RawMessage(`["not", "an", "object"]`)
	issues = ValidateRequest(&PushRequest{Operations: []SyncOperation{update}})
	require.Len(t, issues, 1)
	require.Equal(t, "operations[0].payload", issues[0].Path)

	del := makeOp(OpDelete, EntityWorkout, "w1", nil)
	del.Payload = json.RawMessage(`{"name":"x"}`)
	issues = ValidateRequest(&PushRequest{Operations: []SyncOperation{del}})
	require.Len(t, issues, 1)
	require.Equal(t, "operations[0].payload", issues[0].Path)

	// An explicit JSON null payload on delete is tolerated.
	del.Payload = json.RawMessage(`null`)
	require.Empty(t, ValidateRequest(&PushRequest{Operations: []SyncOperation{del}}))
}

// Issues carry the index of the offending operation, and every operation is
// checked even after earlier ones fail.
func TestValidateRequest_ReportsAllOperations(t *testing.T) {
	bad1 := validOp()
	bad1.ID = ""
	bad2 := validOp()
	bad2.Entity = " "

	issues := ValidateRequest(&PushRequest{Operations: []SyncOperation{bad1, validOp(), bad2}})
	paths := issuePaths(issues)
	require.Equal(t, []string{"operations[0].id", "operations[2].entity"}, paths)
}

// Semantic problems (unknown entity, foreign tenant) are not shape issues;
// they must reach the per-operation result path instead.
func TestValidateRequest_SemanticsAreNotShape(t *testing.T) {
	op := validOp()
	op.Entity = "nutrition_plan"
	op.TenantID = "some-other-tenant"
	require.Empty(t, ValidateRequest(&PushRequest{Operations: []SyncOperation{op}}))
}
