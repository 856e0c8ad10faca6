// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"fmt"
	"log/slog"
)

// Service is the batch reconciler: it applies a client-submitted batch of
// operations against the record store and partitions the results into
// succeeded / conflicts / failed. This is the main SDK component that
// applications integrate.
type Service struct {
	store   RecordStore
	logger  *slog.Logger
	config  *ServiceConfig
	schemas map[string]*EntitySchema
}

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	AppName         string               // Application name for logging
	SchemaVersion   int                  // Wire schema version to report
	MaxBatchSize    int                  // Max operations per push (0 = default)
	MaxChangePage   int                  // Max entries per changes page (0 = default)
	StageMetrics    StageMetricsRecorder // Optional stage timing observer
	LogStageTimings bool                 // Debug-log stage timings
}

const (
	defaultMaxBatchSize  = 500
	defaultMaxChangePage = 1000
)

// Caller is the resolved identity a request acts as.
type Caller struct {
	UserID   string // JWT sub
	TenantID string // Active tenant, resolved from the tid claim
	SourceID string // Device id, JWT did
}

// NewService creates a sync service over the given record store.
func NewService(store RecordStore, config *ServiceConfig, logger *slog.Logger) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.AppName == "" {
		config.AppName = "fitsync"
	}
	if config.SchemaVersion == 0 {
		config.SchemaVersion = 1
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = defaultMaxBatchSize
	}
	if config.MaxChangePage == 0 {
		config.MaxChangePage = defaultMaxChangePage
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		logger:  logger,
		config:  config,
		schemas: defaultSchemas(),
	}
}

// SchemaVersion returns the wire schema version.
func (s *Service) SchemaVersion() int {
	return s.config.SchemaVersion
}

// ProcessPush applies a batch of operations in submission order and returns
// the three-way partition. Operations are independent: there is no
// cross-operation transaction, and one operation's failure never aborts the
// batch. Partial success is the norm, not the exception.
func (s *Service) ProcessPush(ctx context.Context, caller Caller, req *PushRequest) (*PushResponse, error) {
	resp := &PushResponse{
		Succeeded: []OperationSuccess{},
		Conflicts: []OperationConflict{},
		Failed:    []OperationFailure{},
	}
	if len(req.Operations) == 0 {
		return resp, nil
	}

	// Oversized batches are rejected whole so clients cannot silently lose
	// the tail of their pending queue.
	if len(req.Operations) > s.config.MaxBatchSize {
		s.logger.Warn("Push batch over limit",
			"count", len(req.Operations), "limit", s.config.MaxBatchSize, "user_id", caller.UserID)
		for _, op := range req.Operations {
			resp.Failed = append(resp.Failed, resultFailed(op, MsgBatchTooLarge))
		}
		return resp, nil
	}

	s.logger.Info("Processing push batch",
		"count", len(req.Operations), "user_id", caller.UserID, "tenant_id", caller.TenantID, "source_id", caller.SourceID)

	for _, op := range req.Operations {
		start := s.stageStart()

		if op.TenantID != caller.TenantID {
			resp.Failed = append(resp.Failed, resultFailed(op, MsgTenantAccessDenied))
			s.observeStage(ctx, StageApply, start, true)
			continue
		}

		schema, ok := s.schemas[op.Entity]
		if !ok {
			resp.Failed = append(resp.Failed, resultFailed(op, fmt.Sprintf("Unknown entity type: %s", op.Entity)))
			s.observeStage(ctx, StageApply, start, true)
			continue
		}

		outcome := s.applyGuarded(ctx, caller, schema, op)
		s.observeStage(ctx, StageApply, start, outcome.kind == outcomeFailed)

		switch outcome.kind {
		case outcomeSucceeded:
			resp.Succeeded = append(resp.Succeeded, resultSucceeded(op, outcome.version, outcome.serverTS))
			if outcome.mutated {
				s.recordChange(ctx, caller, op, outcome)
			}
		case outcomeConflict:
			resp.Conflicts = append(resp.Conflicts,
				resultConflict(op, outcome.conflict.Type, outcome.conflict.LocalData, outcome.conflict.ServerData))
		case outcomeFailed:
			resp.Failed = append(resp.Failed, resultFailed(op, outcome.errMsg))
		}
	}

	return resp, nil
}

// applyGuarded confines panics from a single operation so a malformed payload
// can never take down the rest of the batch.
func (s *Service) applyGuarded(ctx context.Context, caller Caller, schema *EntitySchema, op SyncOperation) (outcome applyOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic applying operation",
				"op_id", op.ID, "entity", op.Entity, "record_id", op.EntityID, "panic", r)
			outcome = outcomeError(MsgInternalError)
		}
	}()
	return s.applyOperation(ctx, caller, schema, op)
}
