// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	tenantIDKey contextKey = "tenant_id"
	sourceIDKey contextKey = "source_id"
)

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// SetTenantID sets the active tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID retrieves the active tenant ID from the context
func GetTenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	return tenantID, ok
}

// SetSourceID sets the source (device) ID in the context
func SetSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceIDKey, sourceID)
}

// GetSourceID retrieves the source (device) ID from the context
func GetSourceID(ctx context.Context) (string, bool) {
	sourceID, ok := ctx.Value(sourceIDKey).(string)
	return sourceID, ok
}
