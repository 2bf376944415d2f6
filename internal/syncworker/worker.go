package syncworker

import (
	"context"
	"time"

	"github.com/angelmondragon/pimsync/internal/syncqueue"
	"github.com/angelmondragon/pimsync/pkg/config"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/angelmondragon/pimsync/pkg/metrics"
)

// JobQueue is the claim/ack surface the worker drives.
type JobQueue interface {
	Claim(ctx context.Context) (*syncqueue.SyncJob, error)
	Ack(ctx context.Context, jobID string) error
	Retry(ctx context.Context, job *syncqueue.SyncJob, cause error) (bool, error)
}

// LedgerStore records terminal outcomes against the event ledger.
type LedgerStore interface {
	MarkFailed(ctx context.Context, eventID, detail string) error
}

// OutcomeRecorder feeds the sync health counters.
type OutcomeRecorder interface {
	RecordSuccess(ctx context.Context) error
	RecordFailure(ctx context.Context) error
	RecordConnectErrors(ctx context.Context, streak int) error
}

// Worker polls the queue and applies jobs until its context is cancelled.
// Multiple workers may run concurrently; Claim is the only synchronization
// point between them.
type Worker struct {
	queue     JobQueue
	processor *Processor
	ledger    LedgerStore
	recorder  OutcomeRecorder
	cfg       config.QueueConfig
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
}

// New builds a worker.
func New(queue JobQueue, processor *Processor, ledger LedgerStore, recorder OutcomeRecorder, cfg config.QueueConfig, logg *logger.Logger, syncMetrics *metrics.SyncMetrics) *Worker {
	return &Worker{
		queue:     queue,
		processor: processor,
		ledger:    ledger,
		recorder:  recorder,
		cfg:       cfg,
		logg:      logg,
		metrics:   syncMetrics,
	}
}

// Run polls until ctx is cancelled. An empty poll sleeps for the configured
// interval instead of spinning; queue errors are logged and retried on the
// same cadence.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	w.logg.Info(ctx, "sync worker started")
	for {
		job, err := w.queue.Claim(ctx)
		if err != nil {
			w.logg.Error(ctx, "claiming sync job", err)
		} else if job != nil {
			w.handle(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "sync worker stopping")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *syncqueue.SyncJob) {
	jobCtx := w.logg.WithJobID(ctx, job.ID)
	jobCtx = w.logg.WithEventID(jobCtx, job.Metadata.EventID)
	jobCtx = w.logg.WithProductRef(jobCtx, job.ExternalRef)

	started := time.Now()
	err := w.processor.Process(jobCtx, job)
	w.metrics.ObserveDuration(string(job.Operation), time.Since(started))
	w.recordConnStreak(jobCtx)

	switch {
	case err == nil:
		w.finish(jobCtx, job)
	case pkgerrors.IsRetryable(err):
		w.retry(jobCtx, job, err)
	default:
		w.terminal(jobCtx, job, err)
	}
}

func (w *Worker) finish(ctx context.Context, job *syncqueue.SyncJob) {
	if err := w.queue.Ack(ctx, job.ID); err != nil {
		// The job will be re-claimed by the stale-inflight sweep and
		// re-applied; every apply path is idempotent, so this only costs a
		// redundant run.
		w.logg.Error(ctx, "acking completed job", err)
		return
	}
	w.metrics.IncSuccess(string(job.Operation))
	if err := w.recorder.RecordSuccess(ctx); err != nil {
		w.logg.Warn(ctx, "recording sync success outcome failed")
	}
	w.logg.Info(ctx, "sync job applied")
}

func (w *Worker) retry(ctx context.Context, job *syncqueue.SyncJob, cause error) {
	deadLettered, err := w.queue.Retry(ctx, job, cause)
	if err != nil {
		w.logg.Error(ctx, "scheduling job retry", err)
		return
	}
	w.metrics.IncFailure(string(job.Operation))
	if recErr := w.recorder.RecordFailure(ctx); recErr != nil {
		w.logg.Warn(ctx, "recording sync failure outcome failed")
	}
	if deadLettered {
		w.metrics.IncDeadLettered()
		w.markFailedBestEffort(ctx, job, cause)
		w.logg.Error(ctx, "sync job dead-lettered after exhausting retries", cause)
		return
	}
	w.logg.Warn(ctx, "sync job failed, retry scheduled: "+cause.Error())
}

func (w *Worker) terminal(ctx context.Context, job *syncqueue.SyncJob, cause error) {
	w.markFailedBestEffort(ctx, job, cause)
	if err := w.queue.Ack(ctx, job.ID); err != nil {
		w.logg.Error(ctx, "acking terminal job", err)
		return
	}
	w.metrics.IncTerminal(string(job.Operation))
	if recErr := w.recorder.RecordFailure(ctx); recErr != nil {
		w.logg.Warn(ctx, "recording sync failure outcome failed")
	}
	w.logg.Warn(ctx, "sync job terminally failed: "+cause.Error())
}

func (w *Worker) markFailedBestEffort(ctx context.Context, job *syncqueue.SyncJob, cause error) {
	if job.Metadata.EventID == "" {
		return
	}
	if err := w.ledger.MarkFailed(ctx, job.Metadata.EventID, cause.Error()); err != nil {
		w.logg.Warn(ctx, "recording terminal failure in ledger failed")
	}
}

func (w *Worker) recordConnStreak(ctx context.Context) {
	if err := w.recorder.RecordConnectErrors(ctx, w.processor.ConnStreak()); err != nil {
		w.logg.Warn(ctx, "recording PIM connect streak failed")
	}
}
