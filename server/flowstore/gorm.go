// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package flowstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// metadataJSON stores a string map in a JSON column.
type metadataJSON map[string]string

// Value implements the driver.Valuer interface for database storage.
func (m metadataJSON) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (m *metadataJSON) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into metadataJSON", value)
	}

	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("cannot unmarshal metadataJSON: %w", err)
	}
	*m = out
	return nil
}

// flowEventModel is the row of a persisted flow event.
type flowEventModel struct {
	EventID    string       `gorm:"primaryKey;size:36"`
	FlowType   string       `gorm:"size:128;not null;uniqueIndex:idx_flow_events_seq,priority:1"`
	FlowID     string       `gorm:"size:128;not null;uniqueIndex:idx_flow_events_seq,priority:2"`
	Sequence   int64        `gorm:"not null;uniqueIndex:idx_flow_events_seq,priority:3"`
	EventType  string       `gorm:"size:128;not null"`
	Payload    []byte       `gorm:"not null"`
	OccurredAt time.Time    `gorm:"not null"`
	Metadata   metadataJSON `gorm:"type:json"`
}

// TableName returns the table name of flow events.
func (flowEventModel) TableName() string { return "a2a_flow_events" }

func (m *flowEventModel) toEvent() Event {
	return Event{
		EventID:    m.EventID,
		FlowType:   m.FlowType,
		FlowID:     m.FlowID,
		Sequence:   m.Sequence,
		EventType:  m.EventType,
		Payload:    m.Payload,
		OccurredAt: m.OccurredAt.UTC(),
		Metadata:   map[string]string(m.Metadata),
	}
}

// flowSnapshotModel is the row of a flow snapshot.
type flowSnapshotModel struct {
	FlowType  string       `gorm:"primaryKey;size:128"`
	FlowID    string       `gorm:"primaryKey;size:128"`
	Version   int64        `gorm:"not null"`
	Blob      []byte       `gorm:"not null"`
	Metadata  metadataJSON `gorm:"type:json"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName returns the table name of flow snapshots.
func (flowSnapshotModel) TableName() string { return "a2a_flow_snapshots" }

// GormStore is a [Store] backed by a GORM database.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// GormStoreConfig holds configuration for GormStore.
type GormStoreConfig struct {
	DB          *gorm.DB
	CreateTable bool // Whether to migrate the tables on construction
}

// NewGormStore creates a new GormStore.
func NewGormStore(ctx context.Context, config GormStoreConfig) (*GormStore, error) {
	if config.DB == nil {
		return nil, errors.New("database connection cannot be nil")
	}

	s := &GormStore{db: config.DB}
	if config.CreateTable {
		if err := s.db.WithContext(ctx).AutoMigrate(&flowEventModel{}, &flowSnapshotModel{}); err != nil {
			return nil, newStoreError("initialize", "", "", err)
		}
	}
	return s, nil
}

// OpenSQLite opens a SQLite database at path and returns a migrated GormStore.
// The path ":memory:" selects a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:" databases alive.
	sqlDB.SetMaxOpenConns(1)

	return NewGormStore(ctx, GormStoreConfig{DB: db, CreateTable: true})
}

// Rehydrate implements [Store].
func (s *GormStore) Rehydrate(ctx context.Context, flowType, flowID string) (*Rehydrated, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}

	out := &Rehydrated{}
	var after int64

	var snap flowSnapshotModel
	err := s.db.WithContext(ctx).
		Where("flow_type = ? AND flow_id = ?", flowType, flowID).
		Take(&snap).Error
	switch {
	case err == nil:
		out.Snapshot = &Snapshot{
			Version:   snap.Version,
			Blob:      snap.Blob,
			Metadata:  map[string]string(snap.Metadata),
			UpdatedAt: snap.UpdatedAt.UTC(),
		}
		after = snap.Version
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}

	var rows []flowEventModel
	if err := s.db.WithContext(ctx).
		Where("flow_type = ? AND flow_id = ? AND sequence > ?", flowType, flowID, after).
		Order("sequence").
		Find(&rows).Error; err != nil {
		return nil, newStoreError("rehydrate", flowType, flowID, err)
	}
	for i := range rows {
		out.Tail = append(out.Tail, rows[i].toEvent())
	}
	return out, nil
}

// AppendEvents implements [Store].
func (s *GormStore) AppendEvents(ctx context.Context, flowType, flowID string, expectedVersion int64, events []Event) (int64, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return 0, newStoreError("append", flowType, flowID, err)
	}

	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int64
		if err := tx.Model(&flowEventModel{}).
			Where("flow_type = ? AND flow_id = ?", flowType, flowID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&current).Error; err != nil {
			return err
		}
		if current != expectedVersion {
			version = current
			return &ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: current}
		}
		if len(events) == 0 {
			version = current
			return nil
		}

		now := time.Now().UTC()
		rows := make([]flowEventModel, 0, len(events))
		for _, ev := range events {
			current++
			row := flowEventModel{
				EventID:    ev.EventID,
				FlowType:   flowType,
				FlowID:     flowID,
				Sequence:   current,
				EventType:  ev.EventType,
				Payload:    ev.Payload,
				OccurredAt: ev.OccurredAt.UTC(),
				Metadata:   metadataJSON(ev.Metadata),
			}
			if row.EventID == "" {
				row.EventID = uuid.NewString()
			}
			if ev.OccurredAt.IsZero() {
				row.OccurredAt = now
			}
			if row.Payload == nil {
				row.Payload = []byte{}
			}
			rows = append(rows, row)
		}
		if err := tx.Create(&rows).Error; err != nil {
			if isDuplicateKey(err) {
				return &ConflictError{FlowType: flowType, FlowID: flowID, Expected: expectedVersion, Actual: -1}
			}
			return err
		}
		version = current
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return version, err
		}
		return 0, newStoreError("append", flowType, flowID, err)
	}
	return version, nil
}

// WriteSnapshot implements [Store].
func (s *GormStore) WriteSnapshot(ctx context.Context, flowType, flowID string, version int64, blob []byte, metadata map[string]string) error {
	if err := validateFlow(flowType, flowID); err != nil {
		return newStoreError("write snapshot", flowType, flowID, err)
	}

	row := flowSnapshotModel{
		FlowType:  flowType,
		FlowID:    flowID,
		Version:   version,
		Blob:      blob,
		Metadata:  metadataJSON(metadata),
		UpdatedAt: time.Now().UTC(),
	}
	if row.Blob == nil {
		row.Blob = []byte{}
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return newStoreError("write snapshot", flowType, flowID, err)
	}
	return nil
}

// ReadEvents implements [Store].
func (s *GormStore) ReadEvents(ctx context.Context, flowType, flowID string, afterSeq int64, pageSize int) ([]Event, error) {
	if err := validateFlow(flowType, flowID); err != nil {
		return nil, newStoreError("read events", flowType, flowID, err)
	}

	var rows []flowEventModel
	if err := s.db.WithContext(ctx).
		Where("flow_type = ? AND flow_id = ? AND sequence > ?", flowType, flowID, afterSeq).
		Order("sequence").
		Limit(normalizePageSize(pageSize)).
		Find(&rows).Error; err != nil {
		return nil, newStoreError("read events", flowType, flowID, err)
	}

	events := make([]Event, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toEvent())
	}
	return events, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
