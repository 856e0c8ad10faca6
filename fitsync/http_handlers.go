// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// HTTPSyncHandlers provides the HTTP surface for the sync API.
type HTTPSyncHandlers struct {
	service       *Service
	authenticator ClientAuthenticator
	tenants       *TenantResolver
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers.
func NewHTTPSyncHandlers(service *Service, authenticator ClientAuthenticator, tenants *TenantResolver, logger *slog.Logger) *HTTPSyncHandlers {
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		tenants:       tenants,
		logger:        logger,
	}
}

// resolveCaller authenticates the request and resolves the tenant context.
// On failure it writes the response and returns false.
func (h *HTTPSyncHandlers) resolveCaller(w http.ResponseWriter, r *http.Request, requiredPerm string) (Caller, bool) {
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return Caller{}, false
	}
	sourceID, err := h.authenticator.GetSourceID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return Caller{}, false
	}
	tenantID, err := h.authenticator.GetTenantID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return Caller{}, false
	}

	if _, err := h.tenants.Resolve(r.Context(), userID, tenantID, requiredPerm); err != nil {
		if err == ErrTenantContextRequired {
			h.writeError(w, http.StatusBadRequest, "Tenant context required")
		} else {
			h.logger.Error("Tenant resolution failed", "error", err, "user_id", userID, "tenant_id", tenantID)
			h.writeError(w, http.StatusInternalServerError, "Failed to resolve tenant")
		}
		return Caller{}, false
	}

	return Caller{UserID: userID, TenantID: tenantID, SourceID: sourceID}, true
}

// HandlePush processes POST /api/sync/push. Individual operation failures
// are always reported inside a 200 response; only authentication, tenant
// resolution, shape validation, and unexpected errors use non-200 statuses.
func (h *HTTPSyncHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	caller, ok := h.resolveCaller(w, r, PermSyncPush)
	if !ok {
		return
	}

	var pushReq PushRequest
	if err := json.NewDecoder(r.Body).Decode(&pushReq); err != nil {
		h.writeInvalidRequest(w, []ValidationIssue{{Path: "body", Message: "malformed JSON body"}})
		return
	}

	if issues := ValidateRequest(&pushReq); len(issues) > 0 {
		h.writeInvalidRequest(w, issues)
		return
	}

	response, err := h.service.ProcessPush(r.Context(), caller, &pushReq)
	if err != nil {
		h.logger.Error("Failed to process push", "error", err, "user_id", caller.UserID, "source_id", caller.SourceID)
		h.writeError(w, http.StatusInternalServerError, "Failed to process push")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode push response", "error", err, "user_id", caller.UserID)
	}
}

// HandleChanges processes GET /api/sync/changes, the paged change-log feed.
func (h *HTTPSyncHandlers) HandleChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	caller, ok := h.resolveCaller(w, r, PermSyncPull)
	if !ok {
		return
	}

	after := int64(0)
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "after must be an integer >= 0")
			return
		}
		after = parsed
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	response, err := h.service.Changes(r.Context(), caller.TenantID, after, limit)
	if err != nil {
		h.logger.Error("Failed to fetch changes", "error", err, "tenant_id", caller.TenantID)
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch changes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode changes response", "error", err, "tenant_id", caller.TenantID)
	}
}

// HandleSchemaVersion returns the wire schema version.
func (h *HTTPSyncHandlers) HandleSchemaVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	response := SchemaVersionResponse{
		Version: h.service.SchemaVersion(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeError writes the request-level error envelope.
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"message", message)
}

// writeInvalidRequest writes the 400 shape-validation envelope with issues.
func (h *HTTPSyncHandlers) writeInvalidRequest(w http.ResponseWriter, issues []ValidationIssue) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{Error: "Invalid request format", Issues: issues})

	h.logger.Debug("HTTP validation failure", "issues", len(issues))
}
