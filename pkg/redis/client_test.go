package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("webhook", "evt-1"); got != "pim:idempotency:webhook:evt-1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CounterKey("pim_connect_failures"); got != "pim:counter:pim_connect_failures" {
		t.Fatalf("unexpected counter key %s", got)
	}
	if got := client.LockKey("cron"); got != "pim:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.SyncKey("main"); got != "pim:sync:main" {
		t.Fatalf("unexpected sync key %s", got)
	}
	if got := client.SyncKey("job", "abc"); got != "pim:sync:job:abc" {
		t.Fatalf("unexpected sync job key %s", got)
	}
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if _, err := client.IncrWithTTL(ctx, "k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire on first increment")
	}
	if _, err := client.IncrWithTTL(ctx, "k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}
}

func TestListOps(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.RPush(ctx, "main", "a", "b"); err != nil {
		t.Fatalf("rpush: %v", err)
	}
	moved, err := client.LMove(ctx, "main", "inflight", "LEFT", "RIGHT")
	if err != nil {
		t.Fatalf("lmove: %v", err)
	}
	if moved != "a" {
		t.Fatalf("expected head element a, got %q", moved)
	}
	if n, _ := client.LLen(ctx, "main"); n != 1 {
		t.Fatalf("expected main length 1, got %d", n)
	}
	if n, _ := client.LLen(ctx, "inflight"); n != 1 {
		t.Fatalf("expected inflight length 1, got %d", n)
	}

	removed, err := client.LRem(ctx, "inflight", 1, "a")
	if err != nil {
		t.Fatalf("lrem: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if removed, _ = client.LRem(ctx, "inflight", 1, "a"); removed != 0 {
		t.Fatalf("second removal should find nothing, got %d", removed)
	}

	if _, err := client.LMove(ctx, "empty", "dest", "LEFT", "RIGHT"); err != redis.Nil {
		t.Fatalf("expected redis.Nil on empty source, got %v", err)
	}
}

func TestSetAndPushWritesPayloadBeforeMember(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.SetAndPush(ctx, "job:1", `{"id":"1"}`, "main", "1"); err != nil {
		t.Fatalf("set and push: %v", err)
	}
	if mock.data["job:1"] == "" {
		t.Fatalf("expected payload key to be written")
	}
	entries, _ := client.LRange(ctx, "main", 0, -1)
	if len(entries) != 1 || entries[0] != "1" {
		t.Fatalf("unexpected list state %v", entries)
	}
}

type mockCmdable struct {
	data        map[string]string
	lists       map[string][]string
	hashes      map[string]map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:   make(map[string]string),
		lists:  make(map[string][]string),
		hashes: make(map[string]map[string]string),
		incr:   make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) RPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		m.lists[key] = append(m.lists[key], fmt.Sprint(v))
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) LMove(ctx context.Context, source, destination, srcPos, destPos string) *redis.StringCmd {
	src := m.lists[source]
	if len(src) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	var member string
	if srcPos == "LEFT" {
		member, m.lists[source] = src[0], src[1:]
	} else {
		member, m.lists[source] = src[len(src)-1], src[:len(src)-1]
	}
	if destPos == "RIGHT" {
		m.lists[destination] = append(m.lists[destination], member)
	} else {
		m.lists[destination] = append([]string{member}, m.lists[destination]...)
	}
	return redis.NewStringResult(member, nil)
}

func (m *mockCmdable) LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd {
	target := fmt.Sprint(value)
	var kept []string
	removed := int64(0)
	for _, v := range m.lists[key] {
		if v == target && (count == 0 || removed < count) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	m.lists[key] = kept
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	list := m.lists[key]
	if stop == -1 {
		stop = int64(len(list)) - 1
	}
	if start < 0 || start >= int64(len(list)) {
		return redis.NewStringSliceResult(nil, nil)
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, list[start:stop+1]...)
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) LLen(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *mockCmdable) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		m.hashes[key][fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values) / 2), nil)
}

func (m *mockCmdable) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	v, ok := m.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	removed := int64(0)
	for _, f := range fields {
		if _, ok := m.hashes[key][f]; ok {
			delete(m.hashes[key], f)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}
