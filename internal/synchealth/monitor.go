package synchealth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/pimsync/internal/syncqueue"
	"github.com/angelmondragon/pimsync/pkg/config"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/redis"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert types surfaced by the monitor.
const (
	AlertSyncFailedThreshold = "sync_failed_threshold"
	AlertSyncDelayed         = "sync_delayed"
	AlertAkeneoUnreachable   = "akeneo_unreachable"
)

// Status is the overall traffic-light rollup.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Alert is a single active condition.
type Alert struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HealthStatus is the full monitor snapshot. It is derived entirely from
// aggregates; producing it never mutates pipeline state.
type HealthStatus struct {
	Status             Status          `json:"status"`
	Alerts             []Alert         `json:"alerts"`
	WindowSuccesses    int64           `json:"window_successes"`
	WindowFailures     int64           `json:"window_failures"`
	FailureRatePercent float64         `json:"failure_rate_percent"`
	LastSuccessAt      *time.Time      `json:"last_success_at,omitempty"`
	ConnectErrors      int             `json:"pim_connect_errors"`
	QueueDepths        syncqueue.Depths `json:"queue_depths"`
	CheckedAt          time.Time       `json:"checked_at"`
}

// DepthsProvider reports queue list lengths.
type DepthsProvider interface {
	Depths(ctx context.Context) (syncqueue.Depths, error)
}

// Monitor evaluates pipeline health from the recorder's aggregates plus the
// queue depths.
type Monitor struct {
	store  counterStore
	queue  DepthsProvider
	cfg    config.HealthConfig
	now    func() time.Time
}

// NewMonitor builds a monitor.
func NewMonitor(store counterStore, queue DepthsProvider, cfg config.HealthConfig) *Monitor {
	return &Monitor{store: store, queue: queue, cfg: cfg, now: time.Now}
}

// CheckHealth produces the current snapshot over the configured window.
func (m *Monitor) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	now := m.now()
	window := m.cfg.Window
	if window <= 0 {
		window = time.Hour
	}

	successes, err := m.sumWindow(ctx, successCounter, window, now)
	if err != nil {
		return nil, err
	}
	failures, err := m.sumWindow(ctx, failureCounter, window, now)
	if err != nil {
		return nil, err
	}

	status := &HealthStatus{
		Status:          StatusHealthy,
		Alerts:          []Alert{},
		WindowSuccesses: successes,
		WindowFailures:  failures,
		CheckedAt:       now,
	}

	if total := successes + failures; total > 0 {
		status.FailureRatePercent = float64(failures) / float64(total) * 100
	}

	if lastSuccess, found, err := m.lastSuccess(ctx); err != nil {
		return nil, err
	} else if found {
		status.LastSuccessAt = &lastSuccess
	}

	connErrors, err := m.connectErrors(ctx)
	if err != nil {
		return nil, err
	}
	status.ConnectErrors = connErrors

	if m.queue != nil {
		depths, err := m.queue.Depths(ctx)
		if err != nil {
			return nil, err
		}
		status.QueueDepths = depths
	}

	m.evaluate(status, now)
	return status, nil
}

func (m *Monitor) evaluate(status *HealthStatus, now time.Time) {
	if total := status.WindowSuccesses + status.WindowFailures; total > 0 {
		switch {
		case status.FailureRatePercent >= m.cfg.CriticalRatePercent:
			status.addAlert(AlertSyncFailedThreshold, SeverityCritical,
				fmt.Sprintf("%.1f%% of syncs failed over the window", status.FailureRatePercent))
		case status.FailureRatePercent >= m.cfg.FailureRatePercent:
			status.addAlert(AlertSyncFailedThreshold, SeverityWarning,
				fmt.Sprintf("%.1f%% of syncs failed over the window", status.FailureRatePercent))
		}
	}

	if status.LastSuccessAt != nil && m.cfg.MaxSyncStaleness > 0 {
		if staleness := now.Sub(*status.LastSuccessAt); staleness > m.cfg.MaxSyncStaleness {
			status.addAlert(AlertSyncDelayed, SeverityWarning,
				fmt.Sprintf("no successful sync for %s", staleness.Truncate(time.Minute)))
		}
	}

	if m.cfg.MaxConsecutiveFails > 0 && status.ConnectErrors >= m.cfg.MaxConsecutiveFails {
		status.addAlert(AlertAkeneoUnreachable, SeverityCritical,
			fmt.Sprintf("%d consecutive PIM connection failures", status.ConnectErrors))
	}
}

func (s *HealthStatus) addAlert(alertType string, severity Severity, message string) {
	s.Alerts = append(s.Alerts, Alert{Type: alertType, Severity: severity, Message: message})
	if severity == SeverityCritical {
		s.Status = StatusCritical
		return
	}
	if s.Status != StatusCritical {
		s.Status = StatusWarning
	}
}

func (m *Monitor) sumWindow(ctx context.Context, name string, window time.Duration, now time.Time) (int64, error) {
	buckets := int(window/bucketWidth) + 1
	var total int64
	for offset := 0; offset < buckets; offset++ {
		raw, err := m.store.Get(ctx, bucketKey(m.store, name, now, offset))
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading sync outcome counter")
		}
		count, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			continue
		}
		total += count
	}
	return total, nil
}

func (m *Monitor) lastSuccess(ctx context.Context) (time.Time, bool, error) {
	raw, err := m.store.Get(ctx, m.store.SyncKey(lastSuccessKey))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading last sync success")
	}
	millis, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis), true, nil
}

func (m *Monitor) connectErrors(ctx context.Context) (int, error) {
	raw, err := m.store.Get(ctx, m.store.SyncKey(connErrorsKey))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading PIM connect errors")
	}
	count, parseErr := strconv.Atoi(raw)
	if parseErr != nil {
		return 0, nil
	}
	return count, nil
}
