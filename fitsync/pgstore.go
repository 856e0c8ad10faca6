// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var pgMigrations embed.FS

// PgStore is the PostgreSQL RecordStore, backed by a pgx connection pool.
// All conflict-sensitive writes are single statements, so the version gate
// holds under concurrent writers without explicit locking.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgStore creates the store and applies pending migrations.
// The caller keeps ownership of the pool's lifecycle.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PgStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	goose.SetBaseFS(pgMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations/postgres"); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &PgStore{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for advanced callers.
func (s *PgStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PgStore) Get(ctx context.Context, key RecordKey) (*Record, error) {
	rec := &Record{TenantID: key.TenantID, Entity: key.Entity, RecordID: key.RecordID}
	err := s.pool.QueryRow(ctx, `
		SELECT payload, version, deleted, updated_at
		FROM sync_record
		WHERE tenant_id = $1 AND entity = $2 AND record_id = $3`,
		key.TenantID, key.Entity, key.RecordID,
	).Scan(&rec.Payload, &rec.Version, &rec.Deleted, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PgStore) Insert(ctx context.Context, rec *Record) (bool, error) {
	var inserted bool
	err := s.withRetry(ctx, func() error {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO sync_record (tenant_id, entity, record_id, payload, version, deleted, updated_at)
			VALUES ($1, $2, $3, $4, 1, FALSE, now())
			ON CONFLICT (tenant_id, entity, record_id) DO NOTHING
			RETURNING version, updated_at`,
			rec.TenantID, rec.Entity, rec.RecordID, rec.Payload,
		).Scan(&rec.Version, &rec.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			inserted = false
			return nil
		}
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return inserted, nil
}

func (s *PgStore) UpdateVersioned(ctx context.Context, key RecordKey, maxExpected int64, payload []byte, deleted bool) (*Record, bool, error) {
	rec := &Record{TenantID: key.TenantID, Entity: key.Entity, RecordID: key.RecordID}
	var matched bool
	err := s.withRetry(ctx, func() error {
		err := s.pool.QueryRow(ctx, `
			UPDATE sync_record
			SET payload = $4, deleted = $5, version = version + 1, updated_at = now()
			WHERE tenant_id = $1 AND entity = $2 AND record_id = $3
			  AND ($6::bigint < 0 OR version <= $6)
			RETURNING payload, version, deleted, updated_at`,
			key.TenantID, key.Entity, key.RecordID, payload, deleted, maxExpected,
		).Scan(&rec.Payload, &rec.Version, &rec.Deleted, &rec.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			matched = false
			return nil
		}
		if err != nil {
			return err
		}
		matched = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("versioned update: %w", err)
	}
	if matched {
		return rec, true, nil
	}

	// No row matched: either the record is absent or the version gate failed.
	if _, err := s.Get(ctx, key); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, false, ErrRecordNotFound
		}
		return nil, false, err
	}
	return nil, false, nil
}

func (s *PgStore) SoftDelete(ctx context.Context, key RecordKey) (*Record, error) {
	rec := &Record{TenantID: key.TenantID, Entity: key.Entity, RecordID: key.RecordID}
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx, `
			UPDATE sync_record
			SET deleted = TRUE, version = version + 1, updated_at = now()
			WHERE tenant_id = $1 AND entity = $2 AND record_id = $3
			RETURNING payload, version, deleted, updated_at`,
			key.TenantID, key.Entity, key.RecordID,
		).Scan(&rec.Payload, &rec.Version, &rec.Deleted, &rec.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	return rec, nil
}

func (s *PgStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	out := &Record{TenantID: rec.TenantID, Entity: rec.Entity, RecordID: rec.RecordID}
	err := s.withRetry(ctx, func() error {
		return s.pool.QueryRow(ctx, `
			INSERT INTO sync_record (tenant_id, entity, record_id, payload, version, deleted, updated_at)
			VALUES ($1, $2, $3, $4, 1, FALSE, now())
			ON CONFLICT (tenant_id, entity, record_id) DO UPDATE
			SET payload = EXCLUDED.payload, deleted = FALSE,
			    version = sync_record.version + 1, updated_at = now()
			RETURNING payload, version, deleted, updated_at`,
			rec.TenantID, rec.Entity, rec.RecordID, rec.Payload,
		).Scan(&out.Payload, &out.Version, &out.Deleted, &out.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return out, nil
}

func (s *PgStore) AppendChange(ctx context.Context, entry *ChangeLogEntry) error {
	var data []byte
	if entry.Data != nil {
		data = entry.Data
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sync_change_log (tenant_id, entity, record_id, operation, data, actor, source, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		entry.TenantID, entry.Entity, entry.RecordID, entry.Operation, data, entry.Actor, entry.Source, entry.Timestamp,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

func (s *PgStore) ChangesAfter(ctx context.Context, tenantID string, after int64, limit int) ([]ChangeLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, tenant_id, entity, record_id, operation, data, actor, source, ts
		FROM sync_change_log
		WHERE tenant_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`,
		tenantID, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var entries []ChangeLogEntry
	for rows.Next() {
		var e ChangeLogEntry
		if err := rows.Scan(&e.Seq, &e.TenantID, &e.Entity, &e.RecordID, &e.Operation, &e.Data, &e.Actor, &e.Source, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return entries, nil
}

func (s *PgStore) Member(ctx context.Context, tenantID, userID string) (*TenantMember, error) {
	member := &TenantMember{TenantID: tenantID, UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT role, permissions FROM tenant_member
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&member.Role, &member.Permissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func (s *PgStore) UpsertMember(ctx context.Context, member *TenantMember) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_member (tenant_id, user_id, role, permissions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, permissions = EXCLUDED.permissions`,
		member.TenantID, member.UserID, member.Role, member.Permissions,
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// withRetry retries transient serialization/deadlock failures a few times.
func (s *PgStore) withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isRetryablePGError(err) {
			return err
		}
		s.logger.Debug("Retrying transient storage error", "attempt", attempt, "error", err)
		if sleepErr := sleepWithContext(ctx, time.Duration(attempt)*50*time.Millisecond); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
