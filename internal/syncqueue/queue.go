package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/angelmondragon/pimsync/pkg/config"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/angelmondragon/pimsync/pkg/redis"
)

const (
	mainList     = "main"
	inflightList = "inflight"
	deadList     = "dead"
	jobPrefix    = "job"
	claimsHash   = "claims"
)

// store is the slice of the Redis client the queue depends on.
type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	RPush(ctx context.Context, key string, values ...any) error
	LMove(ctx context.Context, source, destination, srcPos, destPos string) (string, error)
	LRem(ctx context.Context, key string, count int64, value any) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key string, values ...any) error
	HGet(ctx context.Context, key, field string) (string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	SetAndPush(ctx context.Context, valueKey string, value any, listKey string, member any) error
	SyncKey(parts ...string) string
}

// Depths is a point-in-time snapshot of the three list lengths.
type Depths struct {
	Main     int64
	Inflight int64
	Dead     int64
}

// Queue is the durable three-list job queue. Lists hold job ids only; the
// JSON payload lives at its own key so moves between lists stay O(1) and the
// payload survives every transition until Ack deletes it.
type Queue struct {
	store store
	cfg   config.QueueConfig
	logg  *logger.Logger
	now   func() time.Time
}

// New builds a queue over the provided Redis store.
func New(store store, cfg config.QueueConfig, logg *logger.Logger) *Queue {
	return &Queue{store: store, cfg: cfg, logg: logg, now: time.Now}
}

func (q *Queue) mainKey() string     { return q.store.SyncKey(mainList) }
func (q *Queue) inflightKey() string { return q.store.SyncKey(inflightList) }
func (q *Queue) deadKey() string     { return q.store.SyncKey(deadList) }
func (q *Queue) claimsKey() string   { return q.store.SyncKey(claimsHash) }
func (q *Queue) jobKey(id string) string {
	return q.store.SyncKey(jobPrefix, id)
}

// Enqueue stores the payload and appends the job id to the main list. The
// payload write lands first so a listed id always has a readable payload.
func (q *Queue) Enqueue(ctx context.Context, job *SyncJob) error {
	if job.ID == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "job id is required")
	}
	raw, err := job.encode()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding sync job")
	}
	if err := q.store.SetAndPush(ctx, q.jobKey(job.ID), raw, q.mainKey(), job.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueueing sync job")
	}
	return nil
}

// Claim atomically moves the head of main onto inflight and loads the
// payload. A job whose next attempt time has not arrived is rotated back to
// the tail of main and the poll comes back empty; callers sleep and retry.
// Returns (nil, nil) when there is no claimable work.
func (q *Queue) Claim(ctx context.Context) (*SyncJob, error) {
	jobID, err := q.store.LMove(ctx, q.mainKey(), q.inflightKey(), "LEFT", "RIGHT")
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming sync job")
	}

	raw, err := q.store.Get(ctx, q.jobKey(jobID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Orphaned id without payload; drop it rather than cycling forever.
			if _, remErr := q.store.LRem(ctx, q.inflightKey(), 1, jobID); remErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, remErr, "dropping orphaned job id")
			}
			q.logg.Warn(ctx, fmt.Sprintf("dropped queued job id %s with no payload", jobID))
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading sync job payload")
	}

	job, err := decodeJob(raw)
	if err != nil {
		if _, remErr := q.store.LRem(ctx, q.inflightKey(), 1, jobID); remErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, remErr, "dropping undecodable job")
		}
		if pushErr := q.store.RPush(ctx, q.deadKey(), jobID); pushErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, pushErr, "dead-lettering undecodable job")
		}
		q.logg.Error(ctx, fmt.Sprintf("dead-lettered undecodable job %s", jobID), err)
		return nil, nil
	}

	now := q.now()
	if !job.Due(now) {
		if err := q.requeueFromInflight(ctx, jobID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	claimedAt := strconv.FormatInt(now.UnixMilli(), 10)
	if err := q.store.HSet(ctx, q.claimsKey(), jobID, claimedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording job claim")
	}
	return job, nil
}

// Ack removes every trace of a finished job: the inflight entry, the payload
// key and the claim timestamp.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	if _, err := q.store.LRem(ctx, q.inflightKey(), 1, jobID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing job from inflight")
	}
	if err := q.store.Del(ctx, q.jobKey(jobID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting job payload")
	}
	if err := q.store.HDel(ctx, q.claimsKey(), jobID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing job claim")
	}
	return nil
}

// Retry records the failure on the job and either schedules another attempt
// with exponential backoff or dead-letters it once the retry budget is spent.
// The returned flag reports whether the job went to the dead list. The LREM
// count guards against a concurrent recovery having already moved the job.
func (q *Queue) Retry(ctx context.Context, job *SyncJob, cause error) (deadLettered bool, err error) {
	job.AttemptCount++
	if cause != nil {
		job.LastError = cause.Error()
	}

	exhausted := job.AttemptCount >= q.cfg.MaxRetries
	if !exhausted {
		job.NextAttemptAt = q.now().Add(q.backoff(job.AttemptCount)).UnixMilli()
	}

	raw, encodeErr := job.encode()
	if encodeErr != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, encodeErr, "encoding sync job")
	}
	if setErr := q.store.Set(ctx, q.jobKey(job.ID), raw, 0); setErr != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, setErr, "persisting retry state")
	}

	removed, remErr := q.store.LRem(ctx, q.inflightKey(), 1, job.ID)
	if remErr != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, remErr, "removing job from inflight")
	}
	if removed == 0 {
		// Someone else (a recovery sweep) already moved it; do not duplicate.
		return false, nil
	}

	target := q.mainKey()
	if exhausted {
		target = q.deadKey()
	}
	if pushErr := q.store.RPush(ctx, target, job.ID); pushErr != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, pushErr, "requeueing sync job")
	}
	if hdelErr := q.store.HDel(ctx, q.claimsKey(), job.ID); hdelErr != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, hdelErr, "clearing job claim")
	}
	return exhausted, nil
}

// RecoverStaleInflight returns jobs whose claim is older than olderThan to
// the main list. Jobs acked between inspection and the move are skipped via
// the LREM count, so recovery never duplicates work.
func (q *Queue) RecoverStaleInflight(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := q.store.LRange(ctx, q.inflightKey(), 0, -1)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing inflight jobs")
	}

	cutoff := q.now().Add(-olderThan).UnixMilli()
	recovered := 0
	for _, jobID := range ids {
		claimedRaw, hgetErr := q.store.HGet(ctx, q.claimsKey(), jobID)
		if hgetErr != nil && !errors.Is(hgetErr, redis.Nil) {
			return recovered, pkgerrors.Wrap(pkgerrors.CodeDependency, hgetErr, "reading job claim")
		}
		if hgetErr == nil {
			claimedAt, parseErr := strconv.ParseInt(claimedRaw, 10, 64)
			if parseErr == nil && claimedAt > cutoff {
				continue
			}
		}
		// Claim missing or stale: both mean the worker never finished.
		removed, remErr := q.store.LRem(ctx, q.inflightKey(), 1, jobID)
		if remErr != nil {
			return recovered, pkgerrors.Wrap(pkgerrors.CodeDependency, remErr, "removing stale inflight job")
		}
		if removed == 0 {
			continue
		}
		if pushErr := q.store.RPush(ctx, q.mainKey(), jobID); pushErr != nil {
			return recovered, pkgerrors.Wrap(pkgerrors.CodeDependency, pushErr, "requeueing stale job")
		}
		if hdelErr := q.store.HDel(ctx, q.claimsKey(), jobID); hdelErr != nil {
			return recovered, pkgerrors.Wrap(pkgerrors.CodeDependency, hdelErr, "clearing stale claim")
		}
		recovered++
	}
	return recovered, nil
}

// Depths reports the three list lengths for observability.
func (q *Queue) Depths(ctx context.Context) (Depths, error) {
	var depths Depths
	var err error
	if depths.Main, err = q.store.LLen(ctx, q.mainKey()); err != nil {
		return depths, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading main depth")
	}
	if depths.Inflight, err = q.store.LLen(ctx, q.inflightKey()); err != nil {
		return depths, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading inflight depth")
	}
	if depths.Dead, err = q.store.LLen(ctx, q.deadKey()); err != nil {
		return depths, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading dead depth")
	}
	return depths, nil
}

func (q *Queue) requeueFromInflight(ctx context.Context, jobID string) error {
	removed, err := q.store.LRem(ctx, q.inflightKey(), 1, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotating job back to main")
	}
	if removed == 0 {
		return nil
	}
	if err := q.store.RPush(ctx, q.mainKey(), jobID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotating job back to main")
	}
	return nil
}

func (q *Queue) backoff(attempts int) time.Duration {
	base := q.cfg.BackoffBase
	if base <= 0 {
		base = 30 * time.Second
	}
	limit := q.cfg.BackoffCap
	if limit <= 0 {
		limit = 30 * time.Minute
	}
	if attempts < 1 {
		attempts = 1
	}
	factor := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(base) * factor)
	if delay > limit || delay <= 0 {
		delay = limit
	}
	return delay
}
