// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"time"
)

// Push pipeline stages.
const (
	StageValidate  = "validate"
	StageApply     = "apply"
	StageChangeLog = "changelog"
)

// StageTiming is one observed pipeline stage.
type StageTiming struct {
	Stage    string
	Duration time.Duration
	Error    bool
}

// StageMetricsRecorder receives stage timings; wire it to whatever metrics
// backend the host application runs.
type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

// StageMetricsRecorderFunc adapts a function to StageMetricsRecorder.
type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

func (s *Service) stageTimingEnabled() bool {
	if s == nil || s.config == nil {
		return false
	}
	return s.config.StageMetrics != nil || s.config.LogStageTimings
}

func (s *Service) stageStart() time.Time {
	if !s.stageTimingEnabled() {
		return time.Time{}
	}
	return time.Now()
}

func (s *Service) observeStage(ctx context.Context, stage string, start time.Time, hadError bool) {
	if start.IsZero() {
		return
	}

	timing := StageTiming{
		Stage:    stage,
		Duration: time.Since(start),
		Error:    hadError,
	}

	if s.config.StageMetrics != nil {
		s.config.StageMetrics.ObserveStage(ctx, timing)
	}
	if s.config.LogStageTimings && s.logger != nil {
		s.logger.Debug("Stage timing",
			"stage", timing.Stage,
			"duration", timing.Duration,
			"error", timing.Error,
		)
	}
}
