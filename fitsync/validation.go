// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request-shape validation. Shape violations are reported once, at the batch
// level, and reject the request before any operation runs. Anything that is
// per-operation semantics (unknown entity, tenant mismatch, bad payload
// fields) is deliberately NOT checked here; those surface as per-operation
// results so the rest of the batch still applies.

// ValidateRequest checks the push request shape and returns all violations.
// An empty slice means the request may be processed.
func ValidateRequest(req *PushRequest) []ValidationIssue {
	var issues []ValidationIssue

	if req.Operations == nil {
		return append(issues, ValidationIssue{Path: "operations", Message: "operations array is required"})
	}

	for i, op := range req.Operations {
		path := func(field string) string {
			return fmt.Sprintf("operations[%d].%s", i, field)
		}

		if strings.TrimSpace(op.ID) == "" {
			issues = append(issues, ValidationIssue{Path: path("id"), Message: "id is required"})
		}
		switch op.Type {
		case OpCreate, OpUpdate, OpDelete:
		default:
			issues = append(issues, ValidationIssue{
				Path:    path("type"),
				Message: fmt.Sprintf("type must be one of create, update, delete; got %q", op.Type),
			})
		}
		if strings.TrimSpace(op.Entity) == "" {
			issues = append(issues, ValidationIssue{Path: path("entity"), Message: "entity is required"})
		}
		if strings.TrimSpace(op.EntityID) == "" {
			issues = append(issues, ValidationIssue{Path: path("entityId"), Message: "entityId is required"})
		}
		if strings.TrimSpace(op.TenantID) == "" {
			issues = append(issues, ValidationIssue{Path: path("tenantId"), Message: "tenantId is required"})
		}
		if op.Timestamp == "" {
			issues = append(issues, ValidationIssue{Path: path("timestamp"), Message: "timestamp is required"})
		} else if _, err := ParseTimestamp(op.Timestamp); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    path("timestamp"),
				Message: "timestamp must be an ISO-8601 datetime string",
			})
		}
		if op.RetryCount < 0 {
			issues = append(issues, ValidationIssue{Path: path("retryCount"), Message: "retryCount must be >= 0"})
		}

		switch op.Type {
		case OpCreate, OpUpdate:
			if len(op.Payload) == 0 {
				issues = append(issues, ValidationIssue{
					Path:    path("payload"),
					Message: fmt.Sprintf("payload is required for %s", op.Type),
				})
			} else if !isJSONObject(op.Payload) {
				issues = append(issues, ValidationIssue{Path: path("payload"), Message: "payload must be a JSON object"})
			}
		case OpDelete:
			if len(op.Payload) != 0 && !isJSONNull(op.Payload) {
				issues = append(issues, ValidationIssue{Path: path("payload"), Message: "delete must not include a payload"})
			}
		}
	}

	return issues
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]any
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
