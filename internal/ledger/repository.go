package ledger

import (
	"context"
	"errors"
	"time"

	pkgdb "github.com/angelmondragon/pimsync/pkg/db"
	"github.com/angelmondragon/pimsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"gorm.io/gorm"
)

const eventIDConstraint = "ux_sync_event_records_event_id"

// Repository is the durable idempotency ledger backed by Postgres. The unique
// index on event_id is the only duplicate detector; there is no check-then-act
// read, so concurrent deliveries of the same event race safely inside the
// database.
type Repository struct {
	db           *gorm.DB
	resourceKind string
}

// NewRepository builds a ledger repository tied to the provided GORM DB.
// resourceKind stamps every row, keeping the ledger reusable for entity types
// beyond products.
func NewRepository(db *gorm.DB, resourceKind string) *Repository {
	if resourceKind == "" {
		resourceKind = "PRODUCT"
	}
	return &Repository{db: db, resourceKind: resourceKind}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, resourceKind: r.resourceKind}
}

// CheckAndReserve atomically records the event id in stage RECEIVED. It
// returns alreadyProcessed=true when a row for the id exists, meaning a prior
// delivery already won the insert. Any other database failure is a dependency
// error so the caller can signal the sender to redeliver.
func (r *Repository) CheckAndReserve(ctx context.Context, eventID, resourceRef string) (alreadyProcessed bool, err error) {
	record := models.SyncEventRecord{
		EventID:      eventID,
		ResourceKind: r.resourceKind,
		ResourceRef:  resourceRef,
		Stage:        models.SyncStageReceived,
	}

	if insertErr := r.db.WithContext(ctx).Create(&record).Error; insertErr != nil {
		if pkgdb.IsUniqueViolation(insertErr, eventIDConstraint) {
			return true, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, insertErr, "ledger reservation failed")
	}
	return false, nil
}

// MarkQueued transitions the event to QUEUED and records the job id that now
// owns it. Updating an already-QUEUED row is a no-op success so a crash
// between enqueue and this update stays harmless on redelivery recovery.
func (r *Repository) MarkQueued(ctx context.Context, eventID, jobID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncEventRecord{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"stage":  models.SyncStageQueued,
			"job_id": jobID,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "ledger stage update failed")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found for event")
	}
	return nil
}

// MarkFailed records a terminal or exhausted failure against the event. The
// detail is stored verbatim for operator triage.
func (r *Repository) MarkFailed(ctx context.Context, eventID, detail string) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncEventRecord{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"stage":        models.SyncStageFailed,
			"error_detail": detail,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "ledger failure update failed")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found for event")
	}
	return nil
}

// FindByEventID loads a single ledger entry.
func (r *Repository) FindByEventID(ctx context.Context, eventID string) (*models.SyncEventRecord, error) {
	var record models.SyncEventRecord
	err := r.db.WithContext(ctx).First(&record, "event_id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger lookup failed")
	}
	return &record, nil
}

// FindStuckReceived lists entries still in RECEIVED older than the cutoff.
// These mark events that were acknowledged to the sender but never made it
// onto the queue, usually due to a crash between the insert and the enqueue.
func (r *Repository) FindStuckReceived(ctx context.Context, olderThan time.Time, limit int) ([]models.SyncEventRecord, error) {
	var records []models.SyncEventRecord
	query := r.db.WithContext(ctx).
		Where("stage = ? AND received_at < ?", models.SyncStageReceived, olderThan).
		Order("received_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stuck entry scan failed")
	}
	return records, nil
}

// CountFailedSince counts FAILED entries updated within the window. The sync
// health monitor uses it as a durable cross-check on the Redis counters.
func (r *Repository) CountFailedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncEventRecord{}).
		Where("stage = ? AND updated_at >= ?", models.SyncStageFailed, since).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed entry count failed")
	}
	return count, nil
}
