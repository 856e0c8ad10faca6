// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"time"
)

// recordChange appends one audit row for a persisted mutation. The audit
// path is best-effort and at-most-once: append failure is logged and
// swallowed, never rolled back against the primary mutation or surfaced to
// the client.
func (s *Service) recordChange(ctx context.Context, caller Caller, op SyncOperation, outcome applyOutcome) {
	start := s.stageStart()
	entry := &ChangeLogEntry{
		TenantID:  caller.TenantID,
		Entity:    op.Entity,
		RecordID:  op.EntityID,
		Operation: outcome.changeOp,
		Data:      outcome.snapshot,
		Actor:     caller.UserID,
		Source:    caller.SourceID,
		Timestamp: time.Now().UTC(),
	}
	err := s.store.AppendChange(ctx, entry)
	s.observeStage(ctx, StageChangeLog, start, err != nil)
	if err != nil {
		s.logger.Warn("Change log append failed; mutation stands",
			"entity", op.Entity, "record_id", op.EntityID, "operation", outcome.changeOp, "error", err)
	}
}

// Changes returns one page of the tenant's change-log feed. The caller pages
// by passing the returned NextAfter as the next request's after value.
func (s *Service) Changes(ctx context.Context, tenantID string, after int64, limit int) (*ChangesResponse, error) {
	if limit < 1 || limit > s.config.MaxChangePage {
		limit = s.config.MaxChangePage
	}

	// Fetch one past the page to learn whether more remain.
	entries, err := s.store.ChangesAfter(ctx, tenantID, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := false
	if len(entries) > limit {
		hasMore = true
		entries = entries[:limit]
	}

	resp := &ChangesResponse{
		Changes:   make([]ChangeDownload, 0, len(entries)),
		HasMore:   hasMore,
		NextAfter: after,
	}
	for _, e := range entries {
		resp.Changes = append(resp.Changes, ChangeDownload{
			Seq:       e.Seq,
			Entity:    e.Entity,
			EntityID:  e.RecordID,
			Operation: e.Operation,
			Data:      e.Data,
			TenantID:  e.TenantID,
			Actor:     e.Actor,
			Source:    e.Source,
			Timestamp: e.Timestamp,
		})
		resp.NextAfter = e.Seq
	}
	return resp, nil
}
