// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testTenant = "tenant-gym-a"
	testUser   = "user-coach-1"
	testDevice = "device-phone-1"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestService(t *testing.T, store RecordStore) *Service {
	t.Helper()
	return NewService(store, &ServiceConfig{AppName: "fitsync-test"}, testLogger())
}

func testCaller() Caller {
	return Caller{UserID: testUser, TenantID: testTenant, SourceID: testDevice}
}

func makeOp(opType, entity, entityID string, payload map[string]any) SyncOperation {
	op := SyncOperation{
		ID:        uuid.NewString(),
		Type:      opType,
		Entity:    entity,
		EntityID:  entityID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		TenantID:  testTenant,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		op.Payload = data
	}
	return op
}

func workoutPayload(name string) map[string]any {
	return map[string]any{"name": name, "durationMinutes": 45}
}

func pushOne(t *testing.T, svc *Service, op SyncOperation) *PushResponse {
	t.Helper()
	resp, err := svc.ProcessPush(context.Background(), testCaller(), &PushRequest{Operations: []SyncOperation{op}})
	require.NoError(t, err)
	return resp
}

// failStore fails the test on any store access. Used to verify that requests
// rejected before the apply step never touch storage.
type failStore struct {
	t *testing.T
}

func (f *failStore) fail(method string) {
	f.t.Helper()
	f.t.Fatalf("unexpected store call: %s", method)
}

func (f *failStore) Get(context.Context, RecordKey) (*Record, error) {
	f.fail("Get")
	return nil, nil
}

func (f *failStore) Insert(context.Context, *Record) (bool, error) {
	f.fail("Insert")
	return false, nil
}

func (f *failStore) UpdateVersioned(context.Context, RecordKey, int64, []byte, bool) (*Record, bool, error) {
	f.fail("UpdateVersioned")
	return nil, false, nil
}

func (f *failStore) SoftDelete(context.Context, RecordKey) (*Record, error) {
	f.fail("SoftDelete")
	return nil, nil
}

func (f *failStore) Upsert(context.Context, *Record) (*Record, error) {
	f.fail("Upsert")
	return nil, nil
}

func (f *failStore) AppendChange(context.Context, *ChangeLogEntry) error {
	f.fail("AppendChange")
	return nil
}

func (f *failStore) ChangesAfter(context.Context, string, int64, int) ([]ChangeLogEntry, error) {
	f.fail("ChangesAfter")
	return nil, nil
}

func (f *failStore) Member(context.Context, string, string) (*TenantMember, error) {
	f.fail("Member")
	return nil, nil
}

func (f *failStore) UpsertMember(context.Context, *TenantMember) error {
	f.fail("UpsertMember")
	return nil
}

// flakyChangeLogStore delegates to a real store but fails every change-log
// append. Used to verify the audit path is best-effort.
type flakyChangeLogStore struct {
	RecordStore
	appends int
}

func (f *flakyChangeLogStore) AppendChange(context.Context, *ChangeLogEntry) error {
	f.appends++
	return fmt.Errorf("change log unavailable")
}
