// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"errors"
	"log/slog"
)

// ErrTenantContextRequired is returned when a request carries no resolvable
// active tenant: missing tid claim, no membership row, or a membership that
// lacks the required sync permission. Handlers map it to HTTP 400 with the
// "Tenant context required" envelope.
var ErrTenantContextRequired = errors.New("tenant context required")

// TenantResolver resolves the caller's active tenant and permission set.
// Every multi-tenant endpoint consumes it before touching data.
type TenantResolver struct {
	store  RecordStore
	logger *slog.Logger
}

// NewTenantResolver creates a resolver over the membership table.
func NewTenantResolver(store RecordStore, logger *slog.Logger) *TenantResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantResolver{store: store, logger: logger}
}

// Resolve verifies that userID is a member of tenantID holding the required
// permission and returns the membership. A blank tenantID short-circuits to
// ErrTenantContextRequired without a store call.
func (t *TenantResolver) Resolve(ctx context.Context, userID, tenantID, requiredPerm string) (*TenantMember, error) {
	if tenantID == "" {
		return nil, ErrTenantContextRequired
	}

	member, err := t.store.Member(ctx, tenantID, userID)
	if errors.Is(err, ErrNotMember) {
		t.logger.Warn("Tenant resolution refused: not a member", "user_id", userID, "tenant_id", tenantID)
		return nil, ErrTenantContextRequired
	}
	if err != nil {
		return nil, err
	}

	if requiredPerm != "" && !member.HasPermission(requiredPerm) {
		t.logger.Warn("Tenant resolution refused: missing permission",
			"user_id", userID, "tenant_id", tenantID, "permission", requiredPerm)
		return nil, ErrTenantContextRequired
	}

	return member, nil
}
