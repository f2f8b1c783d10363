// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package flowstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// PostgresStore is a [Store] backed by a PostgreSQL connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore over pool. Call EnsureSchema
// before first use on a fresh database.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to dsn and returns a PostgresStore with its schema in place.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the flow tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS a2a_flow_events (
			event_id    TEXT PRIMARY KEY,
			flow_type   TEXT NOT NULL,
			flow_id     TEXT NOT NULL,
			sequence    BIGINT NOT NULL,
			event_type  TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			metadata    JSONB NOT NULL DEFAULT '{}',
			UNIQUE (flow_type, flow_id, sequence)
		)`)
	if err != nil {
		return newStoreError("initialize", "", "", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS a2a_flow_snapshots (
			flow_type  TEXT NOT NULL,
			flow_id    TEXT NOT NULL,
			version    BIGINT NOT NULL,
			blob       BYTEA NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (flow_type, flow_id)
		)`)
	if err != nil {
		return newStoreError("initialize", "", "", err)
	}
	return nil
}

// Rehydrate implements [Store].
func (s *PostgresStore) Rehydrate(ctx context.Context, flowType, flowID string) (*Rehydrated, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}

	out := &Rehydrated{}
	var after int64

	var (
		snap     Snapshot
		metaJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT version, blob, metadata, updated_at
		FROM a2a_flow_snapshots WHERE flow_type = $1 AND flow_id = $2`,
		flowType, flowID).Scan(&snap.Version, &snap.Blob, &metaJSON, &snap.UpdatedAt)
	switch {
	case err == nil:
		snap.Metadata = decodeMetadata(metaJSON)
		snap.UpdatedAt = snap.UpdatedAt.UTC()
		out.Snapshot = &snap
		after = snap.Version
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}

	tail, err := s.queryEvents(ctx, `
		SELECT event_id, flow_type, flow_id, sequence, event_type, payload, occurred_at, metadata
		FROM a2a_flow_events WHERE flow_type = $1 AND flow_id = $2 AND sequence > $3
		ORDER BY sequence`, flowType, flowID, after)
	if err != nil {
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}
	out.Tail = tail
	return out, nil
}

// AppendEvents implements [Store].
func (s *PostgresStore) AppendEvents(ctx context.Context, flowType, flowID string, expectedVersion int64, events []Event) (int64, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return 0, newStoreError("append", flowType, flowID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, newStoreError("append", flowType, flowID, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	// Serialize appenders of the same flow for the duration of the transaction.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))`, flowType, flowID); err != nil {
		return 0, newStoreError("append", flowType, flowID, err)
	}

	var current int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM a2a_flow_events
		WHERE flow_type = $1 AND flow_id = $2`, flowType, flowID).Scan(&current); err != nil {
		return 0, newStoreError("append", flowType, flowID, err)
	}
	if current != expectedVersion {
		return current, &ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: current}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, ev := range events {
		current++
		id := ev.EventID
		if id == "" {
			id = uuid.NewString()
		}
		at := ev.OccurredAt.UTC()
		if ev.OccurredAt.IsZero() {
			at = now
		}
		payload := ev.Payload
		if payload == nil {
			payload = []byte{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO a2a_flow_events (event_id, flow_type, flow_id, sequence, event_type, payload, occurred_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
			id, flowType, flowID, current, ev.EventType, payload, at, encodeMetadata(ev.Metadata))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return 0, &ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: -1}
			}
			return 0, newStoreError("append", flowType, flowID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, newStoreError("append", flowType, flowID, fmt.Errorf("commit: %w", err))
	}
	return current, nil
}

// WriteSnapshot implements [Store].
func (s *PostgresStore) WriteSnapshot(ctx context.Context, flowType, flowID string, version int64, blob []byte, metadata map[string]string) error {
	if err := validateFlow(flowType, flowID); err != nil {
		return newStoreError("write snapshot", flowType, flowID, err)
	}
	if blob == nil {
		blob = []byte{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO a2a_flow_snapshots (flow_type, flow_id, version, blob, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (flow_type, flow_id) DO UPDATE
		SET version = EXCLUDED.version, blob = EXCLUDED.blob,
		    metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		flowType, flowID, version, blob, encodeMetadata(metadata), time.Now().UTC())
	if err != nil {
		return newStoreError("write snapshot", flowType, flowID, err)
	}
	return nil
}

// ReadEvents implements [Store].
func (s *PostgresStore) ReadEvents(ctx context.Context, flowType, flowID string, afterSeq int64, pageSize int) ([]Event, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("read events", flowType, flowID, err)
	}

	events, err := s.queryEvents(ctx, `
		SELECT event_id, flow_type, flow_id, sequence, event_type, payload, occurred_at, metadata
		FROM a2a_flow_events WHERE flow_type = $1 AND flow_id = $2 AND sequence > $3
		ORDER BY sequence LIMIT $4`, flowType, flowID, afterSeq, normalizePageSize(pageSize))
	if err != nil {
		return nil, newStoreError("read events", flowType, flowID, err)
	}
	return events, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev       Event
			metaJSON []byte
		)
		if err := rows.Scan(&ev.EventID, &ev.FlowType, &ev.FlowID, &ev.Sequence, &ev.EventType, &ev.Payload, &ev.OccurredAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Metadata = decodeMetadata(metaJSON)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMetadata(b []byte) map[string]string {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}
