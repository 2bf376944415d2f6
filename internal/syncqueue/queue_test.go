package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	akeneowebhook "github.com/angelmondragon/pimsync/internal/webhooks/akeneo"
	"github.com/angelmondragon/pimsync/pkg/config"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/angelmondragon/pimsync/pkg/redis"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	values map[string]string
	lists  map[string][]string
	hashes map[string]map[string]string
	errOn  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values: map[string]string{},
		lists:  map[string][]string{},
		hashes: map[string]map[string]string{},
		errOn:  map[string]error{},
	}
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if err := f.errOn["Set"]; err != nil {
		return err
	}
	f.values[key] = toString(value)
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if err := f.errOn["Get"]; err != nil {
		return "", err
	}
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeStore) RPush(_ context.Context, key string, values ...any) error {
	if err := f.errOn["RPush"]; err != nil {
		return err
	}
	for _, value := range values {
		f.lists[key] = append(f.lists[key], toString(value))
	}
	return nil
}

func (f *fakeStore) LMove(_ context.Context, source, destination, _, _ string) (string, error) {
	if err := f.errOn["LMove"]; err != nil {
		return "", err
	}
	src := f.lists[source]
	if len(src) == 0 {
		return "", redis.Nil
	}
	head := src[0]
	f.lists[source] = src[1:]
	f.lists[destination] = append(f.lists[destination], head)
	return head, nil
}

func (f *fakeStore) LRem(_ context.Context, key string, _ int64, value any) (int64, error) {
	target := toString(value)
	list := f.lists[key]
	for i, entry := range list {
		if entry == target {
			f.lists[key] = append(append([]string{}, list[:i]...), list[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	return append([]string{}, f.lists[key]...), nil
}

func (f *fakeStore) LLen(_ context.Context, key string) (int64, error) {
	return int64(len(f.lists[key])), nil
}

func (f *fakeStore) HSet(_ context.Context, key string, values ...any) error {
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.hashes[key][toString(values[i])] = toString(values[i+1])
	}
	return nil
}

func (f *fakeStore) HGet(_ context.Context, key, field string) (string, error) {
	value, ok := f.hashes[key][field]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeStore) HDel(_ context.Context, key string, fields ...string) error {
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return nil
}

func (f *fakeStore) SetAndPush(ctx context.Context, valueKey string, value any, listKey string, member any) error {
	if err := f.Set(ctx, valueKey, value, 0); err != nil {
		return err
	}
	return f.RPush(ctx, listKey, member)
}

func (f *fakeStore) SyncKey(parts ...string) string {
	return "pim:sync:" + strings.Join(parts, ":")
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func testQueue(store *fakeStore, cfg config.QueueConfig) *Queue {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = time.Minute
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	return New(store, cfg, logg)
}

func testEvent() *akeneowebhook.InboundEvent {
	return &akeneowebhook.InboundEvent{
		EventID:     "evt-001",
		EventType:   "com.akeneo.pim.v1.product.updated",
		Operation:   akeneowebhook.OpUpdate,
		OccurredAt:  time.Now(),
		ProductRef:  "sku-42",
		ProductUUID: "c7a2c1bb-3a1e-4fd1-a1f9-fba838d1f0f7",
	}
}

func TestEnqueueClaimAck(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	job := NewJob(testEvent())
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := len(store.lists["pim:sync:main"]); got != 1 {
		t.Fatalf("expected one queued id, got %d", got)
	}
	if _, ok := store.values["pim:sync:job:"+job.ID]; !ok {
		t.Fatal("payload key missing after enqueue")
	}

	claimed, err := queue.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected to claim %s, got %+v", job.ID, claimed)
	}
	if got := len(store.lists["pim:sync:inflight"]); got != 1 {
		t.Fatalf("expected one inflight id, got %d", got)
	}
	if _, ok := store.hashes["pim:sync:claims"][job.ID]; !ok {
		t.Fatal("claim timestamp not recorded")
	}

	if err := queue.Ack(ctx, job.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := len(store.lists["pim:sync:inflight"]); got != 0 {
		t.Fatalf("inflight not cleared, %d entries remain", got)
	}
	if _, ok := store.values["pim:sync:job:"+job.ID]; ok {
		t.Fatal("payload not deleted on ack")
	}
	if _, ok := store.hashes["pim:sync:claims"][job.ID]; ok {
		t.Fatal("claim not cleared on ack")
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	queue := testQueue(newFakeStore(), config.QueueConfig{})
	job, err := queue.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Fatalf("expected empty claim, got %+v", job)
	}
}

func TestClaimRotatesNotDueJobs(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	job := NewJob(testEvent())
	job.NextAttemptAt = time.Now().Add(time.Hour).UnixMilli()
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := queue.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("not-due job should not be claimable, got %+v", claimed)
	}
	if got := len(store.lists["pim:sync:main"]); got != 1 {
		t.Fatalf("expected job rotated back to main, got %d entries", got)
	}
	if got := len(store.lists["pim:sync:inflight"]); got != 0 {
		t.Fatalf("expected empty inflight, got %d entries", got)
	}
}

func TestRetrySchedulesBackoff(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{MaxRetries: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	ctx := context.Background()

	job := NewJob(testEvent())
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := queue.Claim(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	before := time.Now()
	dead, err := queue.Retry(ctx, claimed, errors.New("upstream timeout"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if dead {
		t.Fatal("first retry should not dead-letter")
	}
	if claimed.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", claimed.AttemptCount)
	}
	if claimed.LastError != "upstream timeout" {
		t.Fatalf("expected last error recorded, got %q", claimed.LastError)
	}
	if claimed.NextAttemptAt < before.Add(900*time.Millisecond).UnixMilli() {
		t.Fatalf("expected next attempt at least a second out, got %d", claimed.NextAttemptAt)
	}
	if got := len(store.lists["pim:sync:main"]); got != 1 {
		t.Fatalf("expected job back on main, got %d entries", got)
	}
}

func TestRetryDeadLettersAfterBudget(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond})
	ctx := context.Background()

	job := NewJob(testEvent())
	job.AttemptCount = 1
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := queue.Claim(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	dead, err := queue.Retry(ctx, claimed, errors.New("still failing"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !dead {
		t.Fatal("expected dead-letter once retry budget is spent")
	}
	if got := len(store.lists["pim:sync:dead"]); got != 1 {
		t.Fatalf("expected one dead entry, got %d", got)
	}
	if got := len(store.lists["pim:sync:main"]); got != 0 {
		t.Fatalf("dead job must not return to main, got %d entries", got)
	}
	if _, ok := store.values["pim:sync:job:"+job.ID]; !ok {
		t.Fatal("dead job payload must stay readable for triage")
	}
}

func TestRetrySkipsWhenAlreadyRecovered(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	job := NewJob(testEvent())
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := queue.Claim(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	// Simulate a recovery sweep having already moved the job.
	store.lists["pim:sync:inflight"] = nil
	store.lists["pim:sync:main"] = []string{job.ID}

	dead, err := queue.Retry(ctx, claimed, errors.New("slow handler"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if dead {
		t.Fatal("skipped retry must not dead-letter")
	}
	if got := len(store.lists["pim:sync:main"]); got != 1 {
		t.Fatalf("expected exactly one main entry, got %d", got)
	}
}

func TestRecoverStaleInflight(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	stale := NewJob(testEvent())
	fresh := NewJob(testEvent())
	for _, job := range []*SyncJob{stale, fresh} {
		if err := queue.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if _, err := queue.Claim(ctx); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	// Backdate one claim past the staleness cutoff.
	staleAt := time.Now().Add(-time.Hour).UnixMilli()
	store.hashes["pim:sync:claims"][stale.ID] = intString(staleAt)

	recovered, err := queue.RecoverStaleInflight(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected one recovered job, got %d", recovered)
	}
	if got := store.lists["pim:sync:main"]; len(got) != 1 || got[0] != stale.ID {
		t.Fatalf("expected stale job back on main, got %v", got)
	}
	if got := store.lists["pim:sync:inflight"]; len(got) != 1 || got[0] != fresh.ID {
		t.Fatalf("expected fresh job left inflight, got %v", got)
	}
}

func TestRecoverSkipsAckedJob(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	job := NewJob(testEvent())
	if err := queue.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := queue.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.hashes["pim:sync:claims"][job.ID] = intString(time.Now().Add(-time.Hour).UnixMilli())

	// Ack lands between the LRANGE inspection and the LREM in a real race;
	// here the list is simply emptied first, which exercises the same guard.
	if err := queue.Ack(ctx, job.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	recovered, err := queue.RecoverStaleInflight(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("acked job must not be recovered, got %d", recovered)
	}
	if got := len(store.lists["pim:sync:main"]); got != 0 {
		t.Fatalf("acked job must not reappear on main, got %d entries", got)
	}
}

func TestDepths(t *testing.T) {
	store := newFakeStore()
	queue := testQueue(store, config.QueueConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := queue.Enqueue(ctx, NewJob(testEvent())); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, err := queue.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.lists["pim:sync:dead"] = []string{"dead-1"}

	depths, err := queue.Depths(ctx)
	if err != nil {
		t.Fatalf("depths: %v", err)
	}
	if depths.Main != 2 || depths.Inflight != 1 || depths.Dead != 1 {
		t.Fatalf("unexpected depths %+v", depths)
	}
}

func intString(v int64) string {
	return strconv.FormatInt(v, 10)
}
