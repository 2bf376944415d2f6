package models

import (
	"time"
)

// SyncStage tracks how far a webhook event travelled through the pipeline.
type SyncStage string

const (
	SyncStageReceived SyncStage = "RECEIVED"
	SyncStageQueued   SyncStage = "QUEUED"
	SyncStageFailed   SyncStage = "FAILED"
)

// IsValid reports whether the value matches a known pipeline stage.
func (s SyncStage) IsValid() bool {
	switch s {
	case SyncStageReceived, SyncStageQueued, SyncStageFailed:
		return true
	}
	return false
}

// SyncEventRecord is the durable idempotency ledger entry, one per unique
// webhook event id. Rows are never deleted by the pipeline; the unique index
// on event_id is what makes duplicate deliveries short-circuit.
type SyncEventRecord struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	EventID      string     `gorm:"column:event_id;type:text;not null;uniqueIndex:ux_sync_event_records_event_id"`
	ResourceKind string     `gorm:"column:resource_kind;type:text;not null;default:PRODUCT"`
	ResourceRef  string     `gorm:"column:resource_ref;type:text;not null"`
	Stage        SyncStage  `gorm:"column:stage;type:text;not null;default:RECEIVED"`
	JobID        *string    `gorm:"column:job_id;type:text"`
	ErrorDetail  *string    `gorm:"column:error_detail;type:text"`
	ReceivedAt   time.Time  `gorm:"column:received_at;type:timestamptz;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// TableName pins the table name used by the ledger.
func (SyncEventRecord) TableName() string {
	return "sync_event_records"
}
