// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	store    *SQLiteStore
	handlers *HTTPSyncHandlers
	auth     *JWTAuth
	token    string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := newTestStore(t)
	auth := NewJWTAuth("test-secret")
	svc := newTestService(t, store)
	handlers := NewHTTPSyncHandlers(svc, auth, NewTenantResolver(store, testLogger()), testLogger())

	err := store.UpsertMember(context.Background(), &TenantMember{
		TenantID:    testTenant,
		UserID:      testUser,
		Role:        "coach",
		Permissions: []string{PermSyncPush, PermSyncPull},
	})
	require.NoError(t, err)

	token, err := auth.GenerateToken(testUser, testTenant, testDevice, time.Hour)
	require.NoError(t, err)

	return &handlerFixture{store: store, handlers: handlers, auth: auth, token: token}
}

func (f *handlerFixture) pushRequest(t *testing.T, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/sync/push", strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handlers.HandlePush(rec, r)
	return rec
}

func (f *handlerFixture) pushOps(t *testing.T, ops []SyncOperation) *PushResponse {
	t.Helper()
	body, err := json.Marshal(PushRequest{Operations: ops})
	require.NoError(t, err)
	rec := f.pushRequest(t, string(body), f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestHandlePush_RequiresAuthentication(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.pushRequest(t, `{"operations":[]}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "Authentication required", errResp.Error)
}

func TestHandlePush_RequiresTenantContext(t *testing.T) {
	f := newHandlerFixture(t)

	// Valid token, but no active tenant claim.
	token, err := f.auth.GenerateToken(testUser, "", testDevice, time.Hour)
	require.NoError(t, err)

	rec := f.pushRequest(t, `{"operations":[]}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "Tenant context required", errResp.Error)
}

func TestHandlePush_NonMemberGetsTenantContextRequired(t *testing.T) {
	f := newHandlerFixture(t)

	token, err := f.auth.GenerateToken("user-outsider", testTenant, testDevice, time.Hour)
	require.NoError(t, err)

	rec := f.pushRequest(t, `{"operations":[]}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// Membership without the sync:push permission cannot push.
func TestHandlePush_RequiresPushPermission(t *testing.T) {
	f := newHandlerFixture(t)

	err := f.store.UpsertMember(context.Background(), &TenantMember{
		TenantID:    testTenant,
		UserID:      "user-read-only",
		Role:        "client",
		Permissions: []string{PermSyncPull},
	})
	require.NoError(t, err)

	token, err := f.auth.GenerateToken("user-read-only", testTenant, testDevice, time.Hour)
	require.NoError(t, err)

	rec := f.pushRequest(t, `{"operations":[]}`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePush_MalformedJSON(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.pushRequest(t, `{not json`, f.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "Invalid request format", errResp.Error)
	require.Len(t, errResp.Issues, 1)
	require.Equal(t, "body", errResp.Issues[0].Path)
}

func TestHandlePush_ShapeValidation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.pushRequest(t, `{}`, f.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "Invalid request format", errResp.Error)
	require.Equal(t, "operations", errResp.Issues[0].Path)
}

func TestHandlePush_MethodNotAllowed(t *testing.T) {
	f := newHandlerFixture(t)
	r := httptest.NewRequest(http.MethodGet, "/api/sync/push", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandlePush(rec, r)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// Per-operation failures ride inside a 200 response; only request-level
// problems get non-200 statuses.
func TestHandlePush_PerOperationFailuresAre200(t *testing.T) {
	f := newHandlerFixture(t)

	resp := f.pushOps(t, []SyncOperation{
		makeOp(OpCreate, EntityWorkout, "w1", workoutPayload("Leg day")),
		makeOp(OpCreate, "meal", "m1", map[string]any{"name": "Breakfast"}),
	})

	require.Len(t, resp.Succeeded, 1)
	require.Len(t, resp.Failed, 1)
	require.Equal(t, "Unknown entity type: meal", resp.Failed[0].Error)
}

func TestHandlePush_ResponseEchoesOperationFields(t *testing.T) {
	f := newHandlerFixture(t)

	op := makeOp(OpCreate, EntityWorkout, "w1", workoutPayload("Leg day"))
	resp := f.pushOps(t, []SyncOperation{op})

	require.Len(t, resp.Succeeded, 1)
	got := resp.Succeeded[0]
	require.Equal(t, op.ID, got.ID)
	require.Equal(t, op.EntityID, got.EntityID)
	require.Equal(t, int64(1), got.ServerVersion)
	require.False(t, got.ServerTimestamp.IsZero())
}

func TestHandleChanges_FeedAndPaging(t *testing.T) {
	f := newHandlerFixture(t)

	f.pushOps(t, []SyncOperation{
		makeOp(OpCreate, EntityWorkout, "w1", workoutPayload("A")),
		makeOp(OpCreate, EntityWorkout, "w2", workoutPayload("B")),
		makeOp(OpDelete, EntityWorkout, "w1", nil),
	})

	get := func(query string) *ChangesResponse {
		r := httptest.NewRequest(http.MethodGet, "/api/sync/changes"+query, nil)
		r.Header.Set("Authorization", "Bearer "+f.token)
		rec := httptest.NewRecorder()
		f.handlers.HandleChanges(rec, r)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp ChangesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return &resp
	}

	page1 := get("?limit=2")
	require.Len(t, page1.Changes, 2)
	require.True(t, page1.HasMore)
	require.Equal(t, OpCreate, page1.Changes[0].Operation)
	require.Equal(t, "w1", page1.Changes[0].EntityID)
	require.Equal(t, testUser, page1.Changes[0].Actor)
	require.Equal(t, testDevice, page1.Changes[0].Source)

	page2 := get("?after=" + strconv.FormatInt(page1.NextAfter, 10) + "&limit=2")
	require.Len(t, page2.Changes, 1)
	require.False(t, page2.HasMore)
	require.Equal(t, OpDelete, page2.Changes[0].Operation)
	require.Nil(t, page2.Changes[0].Data) // delete carries no snapshot
}

func TestHandleChanges_QueryValidation(t *testing.T) {
	f := newHandlerFixture(t)

	for _, query := range []string{"?after=-1", "?after=abc", "?limit=0", "?limit=1001", "?limit=ten"} {
		r := httptest.NewRequest(http.MethodGet, "/api/sync/changes"+query, nil)
		r.Header.Set("Authorization", "Bearer "+f.token)
		rec := httptest.NewRecorder()
		f.handlers.HandleChanges(rec, r)
		require.Equal(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestHandleSchemaVersion(t *testing.T) {
	f := newHandlerFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/api/sync/schema-version", nil)
	rec := httptest.NewRecorder()
	f.handlers.HandleSchemaVersion(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"schemaVersion":1}`, rec.Body.String())
}
