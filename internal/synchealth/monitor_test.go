package synchealth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/angelmondragon/pimsync/internal/syncqueue"
	"github.com/angelmondragon/pimsync/pkg/config"
	"github.com/angelmondragon/pimsync/pkg/redis"
)

type fakeCounterStore struct {
	values map[string]string
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{values: map[string]string{}}
}

func (f *fakeCounterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	current, _ := strconv.ParseInt(f.values[key], 10, 64)
	current++
	f.values[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (f *fakeCounterStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeCounterStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCounterStore) CounterKey(name string) string { return "pim:counter:" + name }

func (f *fakeCounterStore) SyncKey(parts ...string) string {
	key := "pim:sync"
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

type fakeDepths struct {
	depths syncqueue.Depths
}

func (f *fakeDepths) Depths(context.Context) (syncqueue.Depths, error) {
	return f.depths, nil
}

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		Window:              time.Hour,
		FailureRatePercent:  20,
		CriticalRatePercent: 50,
		MaxSyncStaleness:    6 * time.Hour,
		MaxConsecutiveFails: 5,
	}
}

func record(t *testing.T, recorder *Recorder, successes, failures int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < successes; i++ {
		if err := recorder.RecordSuccess(ctx); err != nil {
			t.Fatalf("record success: %v", err)
		}
	}
	for i := 0; i < failures; i++ {
		if err := recorder.RecordFailure(ctx); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
}

func TestCheckHealthHealthy(t *testing.T) {
	store := newFakeCounterStore()
	recorder := NewRecorder(store, time.Hour)
	record(t, recorder, 9, 1)

	monitor := NewMonitor(store, &fakeDepths{}, testHealthConfig())
	status, err := monitor.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s (%+v)", status.Status, status.Alerts)
	}
	if status.WindowSuccesses != 9 || status.WindowFailures != 1 {
		t.Fatalf("unexpected window counts %+v", status)
	}
	if status.LastSuccessAt == nil {
		t.Fatal("expected last success timestamp")
	}
}

func TestCheckHealthFailureRateAlerts(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      Status
		severity  Severity
	}{
		{name: "warning at 25 percent", successes: 3, failures: 1, want: StatusWarning, severity: SeverityWarning},
		{name: "critical at 60 percent", successes: 2, failures: 3, want: StatusCritical, severity: SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeCounterStore()
			recorder := NewRecorder(store, time.Hour)
			record(t, recorder, tt.successes, tt.failures)

			monitor := NewMonitor(store, &fakeDepths{}, testHealthConfig())
			status, err := monitor.CheckHealth(context.Background())
			if err != nil {
				t.Fatalf("check health: %v", err)
			}
			if status.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, status.Status)
			}
			if len(status.Alerts) != 1 || status.Alerts[0].Type != AlertSyncFailedThreshold {
				t.Fatalf("expected threshold alert, got %+v", status.Alerts)
			}
			if status.Alerts[0].Severity != tt.severity {
				t.Fatalf("expected %s severity, got %s", tt.severity, status.Alerts[0].Severity)
			}
		})
	}
}

func TestCheckHealthNoTrafficIsHealthy(t *testing.T) {
	store := newFakeCounterStore()
	monitor := NewMonitor(store, &fakeDepths{}, testHealthConfig())

	status, err := monitor.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if status.Status != StatusHealthy || len(status.Alerts) != 0 {
		t.Fatalf("idle pipeline must be healthy, got %+v", status)
	}
}

func TestCheckHealthStaleSync(t *testing.T) {
	store := newFakeCounterStore()
	stale := time.Now().Add(-7 * time.Hour).UnixMilli()
	store.values["pim:sync:last_success_at"] = strconv.FormatInt(stale, 10)

	monitor := NewMonitor(store, &fakeDepths{}, testHealthConfig())
	status, err := monitor.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if status.Status != StatusWarning {
		t.Fatalf("expected warning, got %s", status.Status)
	}
	if len(status.Alerts) != 1 || status.Alerts[0].Type != AlertSyncDelayed {
		t.Fatalf("expected delayed alert, got %+v", status.Alerts)
	}
}

func TestCheckHealthUnreachablePIM(t *testing.T) {
	store := newFakeCounterStore()
	recorder := NewRecorder(store, time.Hour)
	if err := recorder.RecordConnectErrors(context.Background(), 6); err != nil {
		t.Fatalf("record connect errors: %v", err)
	}

	monitor := NewMonitor(store, &fakeDepths{}, testHealthConfig())
	status, err := monitor.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if status.Status != StatusCritical {
		t.Fatalf("expected critical, got %s", status.Status)
	}
	if len(status.Alerts) != 1 || status.Alerts[0].Type != AlertAkeneoUnreachable {
		t.Fatalf("expected unreachable alert, got %+v", status.Alerts)
	}
	if status.ConnectErrors != 6 {
		t.Fatalf("expected connect errors surfaced, got %d", status.ConnectErrors)
	}
}

func TestCheckHealthReportsQueueDepths(t *testing.T) {
	store := newFakeCounterStore()
	queue := &fakeDepths{depths: syncqueue.Depths{Main: 4, Inflight: 1, Dead: 2}}

	monitor := NewMonitor(store, queue, testHealthConfig())
	status, err := monitor.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if status.QueueDepths != queue.depths {
		t.Fatalf("expected depths %+v, got %+v", queue.depths, status.QueueDepths)
	}
}
