package synchealth

import (
	"context"
	"strconv"
	"time"
)

// Counter key bucketing: outcomes land in fixed-width time buckets so the
// monitor can sum a sliding window without ever resetting a counter.
const (
	bucketWidth = 10 * time.Minute

	successCounter = "sync_success"
	failureCounter = "sync_failure"

	lastSuccessKey  = "last_success_at"
	connErrorsKey   = "pim_connect_errors"
	outcomeRetainer = 2
)

// counterStore is the slice of the Redis client the health package uses.
type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CounterKey(name string) string
	SyncKey(parts ...string) string
}

// Recorder writes sync outcome aggregates the monitor later reads. All
// writes are cheap single-key operations on the hot path of the worker.
type Recorder struct {
	store  counterStore
	window time.Duration
	now    func() time.Time
}

// NewRecorder builds a recorder whose counters survive long enough to cover
// the monitoring window.
func NewRecorder(store counterStore, window time.Duration) *Recorder {
	if window <= 0 {
		window = time.Hour
	}
	return &Recorder{store: store, window: window, now: time.Now}
}

// RecordSuccess counts a successful sync and refreshes the last-success
// timestamp.
func (r *Recorder) RecordSuccess(ctx context.Context) error {
	if err := r.incrBucket(ctx, successCounter); err != nil {
		return err
	}
	stamp := strconv.FormatInt(r.now().UnixMilli(), 10)
	return r.store.Set(ctx, r.store.SyncKey(lastSuccessKey), stamp, 0)
}

// RecordFailure counts a failed or terminally-skipped sync.
func (r *Recorder) RecordFailure(ctx context.Context) error {
	return r.incrBucket(ctx, failureCounter)
}

// RecordConnectErrors stores the worker's consecutive PIM connection failure
// streak.
func (r *Recorder) RecordConnectErrors(ctx context.Context, streak int) error {
	return r.store.Set(ctx, r.store.SyncKey(connErrorsKey), strconv.Itoa(streak), 0)
}

func (r *Recorder) incrBucket(ctx context.Context, name string) error {
	key := bucketKey(r.store, name, r.now(), 0)
	_, err := r.store.IncrWithTTL(ctx, key, r.window*outcomeRetainer)
	return err
}

// bucketKey returns the counter key for the bucket `offset` widths before t.
func bucketKey(store counterStore, name string, t time.Time, offset int) string {
	bucket := t.Add(-time.Duration(offset)*bucketWidth).UnixMilli() / bucketWidth.Milliseconds()
	return store.CounterKey(name + ":" + strconv.FormatInt(bucket, 10))
}
