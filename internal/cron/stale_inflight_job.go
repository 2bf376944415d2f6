package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pimsync/pkg/logger"
)

// inflightRecoverer is the queue surface the recovery sweep drives.
type inflightRecoverer interface {
	RecoverStaleInflight(ctx context.Context, olderThan time.Duration) (int, error)
}

// StaleInflightJob returns jobs abandoned by crashed workers to the main
// list. A claim older than the staleness threshold means the worker died or
// lost its Redis connection mid-job.
type StaleInflightJob struct {
	queue     inflightRecoverer
	threshold time.Duration
	logg      *logger.Logger
}

// NewStaleInflightJob builds the recovery sweep.
func NewStaleInflightJob(queue inflightRecoverer, threshold time.Duration, logg *logger.Logger) *StaleInflightJob {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &StaleInflightJob{queue: queue, threshold: threshold, logg: logg}
}

// Name identifies the sweep in logs and metrics.
func (j *StaleInflightJob) Name() string { return "stale_inflight_recovery" }

// Run performs one recovery pass.
func (j *StaleInflightJob) Run(ctx context.Context) error {
	recovered, err := j.queue.RecoverStaleInflight(ctx, j.threshold)
	if err != nil {
		return err
	}
	if recovered > 0 {
		j.logg.Warn(ctx, fmt.Sprintf("recovered %d stale in-flight jobs", recovered))
	}
	return nil
}
