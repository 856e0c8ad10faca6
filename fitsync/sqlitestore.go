// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore is the embedded RecordStore for single-node deployments and
// tests. Use ":memory:" as the path for an in-memory database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens the database, applies pragmas, and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL supports concurrent readers but only one writer; a single
	// connection sidesteps SQLITE_BUSY under write contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	goose.SetBaseFS(sqliteMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key RecordKey) (*Record, error) {
	rec := &Record{TenantID: key.TenantID, Entity: key.Entity, RecordID: key.RecordID}
	var payload string
	var deleted int
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, version, deleted, updated_at
		FROM sync_record
		WHERE tenant_id = ? AND entity = ? AND record_id = ?`,
		key.TenantID, key.Entity, key.RecordID,
	).Scan(&payload, &rec.Version, &deleted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.Deleted = deleted != 0
	rec.UpdatedAt = parseStoredTime(updatedAt)
	return rec, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sync_record (tenant_id, entity, record_id, payload, version, deleted, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, ?)`,
		rec.TenantID, rec.Entity, rec.RecordID, string(rec.Payload), formatStoredTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	rec.Version = 1
	rec.UpdatedAt = now
	return true, nil
}

func (s *SQLiteStore) UpdateVersioned(ctx context.Context, key RecordKey, maxExpected int64, payload []byte, deleted bool) (*Record, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_record
		SET payload = ?, deleted = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND entity = ? AND record_id = ?
		  AND (? < 0 OR version <= ?)`,
		string(payload), boolToInt(deleted), formatStoredTime(now),
		key.TenantID, key.Entity, key.RecordID, maxExpected, maxExpected,
	)
	if err != nil {
		return nil, false, fmt.Errorf("versioned update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("versioned update: %w", err)
	}
	if affected == 0 {
		// No row matched: absent record or failed version gate.
		if _, err := s.Get(ctx, key); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, false, ErrRecordNotFound
			}
			return nil, false, err
		}
		return nil, false, nil
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, key RecordKey) (*Record, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_record
		SET deleted = 1, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND entity = ? AND record_id = ?`,
		formatStoredTime(now), key.TenantID, key.Entity, key.RecordID,
	)
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	if affected == 0 {
		return nil, ErrRecordNotFound
	}
	return s.Get(ctx, key)
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_record (tenant_id, entity, record_id, payload, version, deleted, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, ?)
		ON CONFLICT (tenant_id, entity, record_id) DO UPDATE
		SET payload = excluded.payload, deleted = 0,
		    version = sync_record.version + 1, updated_at = excluded.updated_at`,
		rec.TenantID, rec.Entity, rec.RecordID, string(rec.Payload), formatStoredTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return s.Get(ctx, rec.Key())
}

func (s *SQLiteStore) AppendChange(ctx context.Context, entry *ChangeLogEntry) error {
	var data any
	if entry.Data != nil {
		data = string(entry.Data)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_change_log (tenant_id, entity, record_id, operation, data, actor, source, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TenantID, entry.Entity, entry.RecordID, entry.Operation, data, entry.Actor, entry.Source,
		formatStoredTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	entry.Seq = seq
	return nil
}

func (s *SQLiteStore) ChangesAfter(ctx context.Context, tenantID string, after int64, limit int) ([]ChangeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tenant_id, entity, record_id, operation, data, actor, source, ts
		FROM sync_change_log
		WHERE tenant_id = ? AND seq > ?
		ORDER BY seq
		LIMIT ?`,
		tenantID, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var entries []ChangeLogEntry
	for rows.Next() {
		var e ChangeLogEntry
		var data sql.NullString
		var ts string
		if err := rows.Scan(&e.Seq, &e.TenantID, &e.Entity, &e.RecordID, &e.Operation, &data, &e.Actor, &e.Source, &ts); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		e.Timestamp = parseStoredTime(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) Member(ctx context.Context, tenantID, userID string) (*TenantMember, error) {
	member := &TenantMember{TenantID: tenantID, UserID: userID}
	var perms string
	err := s.db.QueryRowContext(ctx, `
		SELECT role, permissions FROM tenant_member
		WHERE tenant_id = ? AND user_id = ?`,
		tenantID, userID,
	).Scan(&member.Role, &perms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &member.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return member, nil
}

func (s *SQLiteStore) UpsertMember(ctx context.Context, member *TenantMember) error {
	perms, err := json.Marshal(member.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_member (tenant_id, user_id, role, permissions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET role = excluded.role, permissions = excluded.permissions`,
		member.TenantID, member.UserID, member.Role, string(perms),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
