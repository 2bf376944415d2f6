package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pimsync/internal/syncqueue"
	akeneowebhook "github.com/angelmondragon/pimsync/internal/webhooks/akeneo"
	"github.com/angelmondragon/pimsync/pkg/db/models"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// stuckLedger is the ledger surface the reconciliation sweep reads and
// advances.
type stuckLedger interface {
	FindStuckReceived(ctx context.Context, olderThan time.Time, limit int) ([]models.SyncEventRecord, error)
	MarkQueued(ctx context.Context, eventID, jobID string) error
}

// jobEnqueuer is the queue surface the sweep pushes onto.
type jobEnqueuer interface {
	Enqueue(ctx context.Context, job *syncqueue.SyncJob) error
}

// StuckReceivedJob re-enqueues ledger entries that were acknowledged to the
// sender but never reached the queue (a crash between the ledger insert and
// the enqueue). The re-enqueued job re-fetches current upstream state, so the
// original operation kind does not need to survive; a vanished product
// resolves as a terminal skip.
type StuckReceivedJob struct {
	ledger    stuckLedger
	queue     jobEnqueuer
	age       time.Duration
	batchSize int
	logg      *logger.Logger
}

// NewStuckReceivedJob builds the reconciliation sweep.
func NewStuckReceivedJob(ledger stuckLedger, queue jobEnqueuer, age time.Duration, batchSize int, logg *logger.Logger) *StuckReceivedJob {
	if age <= 0 {
		age = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &StuckReceivedJob{ledger: ledger, queue: queue, age: age, batchSize: batchSize, logg: logg}
}

// Name identifies the sweep in logs and metrics.
func (j *StuckReceivedJob) Name() string { return "stuck_received_reconcile" }

// Run performs one reconciliation pass. Per-record failures are aggregated so
// one bad record does not block the rest of the batch.
func (j *StuckReceivedJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.age)
	records, err := j.ledger.FindStuckReceived(ctx, cutoff, j.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	j.logg.Warn(ctx, fmt.Sprintf("reconciling %d events stuck in RECEIVED", len(records)))

	var errs error
	for _, record := range records {
		if err := j.reconcile(ctx, record); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", record.EventID, err))
		}
	}
	return errs
}

func (j *StuckReceivedJob) reconcile(ctx context.Context, record models.SyncEventRecord) error {
	job := &syncqueue.SyncJob{
		ID:          uuid.NewString(),
		Operation:   akeneowebhook.OpUpdate,
		ExternalRef: record.ResourceRef,
		CreatedAt:   time.Now().UnixMilli(),
		Metadata: syncqueue.JobMetadata{
			EventID: record.EventID,
		},
	}
	if err := j.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	return j.ledger.MarkQueued(ctx, record.EventID, job.ID)
}
