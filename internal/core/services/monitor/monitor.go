// Package monitor polls vehicle telemetry, keeps the latest dashboard snapshot
// and raises low battery alerts.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/metrics"
)

// Config controls refresh cadence and alerting.
type Config struct {
	RefreshInterval     time.Duration
	HistoryWindow       time.Duration
	LowBatteryThreshold float64
	AlertCooldown       time.Duration
}

// DefaultConfig matches the dashboard's original behaviour.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:     15 * time.Second,
		HistoryWindow:       time.Hour,
		LowBatteryThreshold: 20,
		AlertCooldown:       5 * time.Minute,
	}
}

// Snapshot is what the dashboard renders. It is never mutated after publish.
type Snapshot struct {
	Latest    *domain.VehicleSample  `json:"latest,omitempty"`
	History   []domain.VehicleSample `json:"history"`
	UpdatedAt time.Time              `json:"updated_at"`
	Error     string                 `json:"error,omitempty"`
	LastAlert time.Time              `json:"last_alert,omitempty"`
	// AlertSent is set on the refresh that delivered an alert.
	AlertSent bool `json:"alert_sent"`
}

// NoData reports whether the telemetry table was empty on the last refresh.
func (s Snapshot) NoData() bool {
	return s.Latest == nil && s.Error == ""
}

type Monitor struct {
	repo   ports.TelemetryRepository
	alerts ports.AlertSender
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time

	mu        sync.RWMutex
	snapshot  Snapshot
	lastAlert time.Time
}

func New(repo ports.TelemetryRepository, alerts ports.AlertSender, cfg Config, logger *zap.SugaredLogger) *Monitor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Monitor{
		repo:   repo,
		alerts: alerts,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot returns the most recently published snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Run refreshes immediately and then on every interval until ctx is done.
// Refresh errors are logged and published; they never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.Errorw("Error updating dashboard", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh loads the latest sample and history, publishes a new snapshot and
// sends a low battery alert when one is due.
func (m *Monitor) Refresh(ctx context.Context) error {
	now := m.now()
	snap := Snapshot{UpdatedAt: now}

	latest, err := m.repo.Latest(ctx)
	if errors.Is(err, domain.ErrNoTelemetry) {
		m.publish(snap)
		metrics.MonitorRefreshes.WithLabelValues("empty").Inc()
		return nil
	}
	if err != nil {
		return m.publishErr(snap, err)
	}
	snap.Latest = latest
	metrics.BatteryLevel.Set(latest.BatteryLevel)

	history, err := m.repo.Since(ctx, now.Add(-m.cfg.HistoryWindow))
	if err != nil {
		return m.publishErr(snap, err)
	}
	snap.History = history

	if m.alertDue(latest, now) {
		if err := m.alerts.SendLowBattery(ctx, domain.AlertFor(*latest, now)); err != nil {
			metrics.AlertsSent.WithLabelValues("failed").Inc()
			m.logger.Errorw("Failed to send low battery alert", "battery_level", latest.BatteryLevel, "error", err)
		} else {
			metrics.AlertsSent.WithLabelValues("sent").Inc()
			m.logger.Infow("Successfully sent low battery alert", "battery_level", latest.BatteryLevel)
			m.mu.Lock()
			m.lastAlert = now
			m.mu.Unlock()
			snap.AlertSent = true
		}
	}

	m.publish(snap)
	metrics.MonitorRefreshes.WithLabelValues("ok").Inc()
	return nil
}

// alertDue applies the threshold and the cooldown. The cooldown only starts
// from a delivered alert, so a failed send is retried on the next refresh.
func (m *Monitor) alertDue(s *domain.VehicleSample, now time.Time) bool {
	if m.alerts == nil || s.BatteryLevel >= m.cfg.LowBatteryThreshold {
		return false
	}
	m.mu.RLock()
	last := m.lastAlert
	m.mu.RUnlock()
	return last.IsZero() || now.Sub(last) > m.cfg.AlertCooldown
}

func (m *Monitor) publish(snap Snapshot) {
	m.mu.Lock()
	snap.LastAlert = m.lastAlert
	m.snapshot = snap
	m.mu.Unlock()
}

func (m *Monitor) publishErr(snap Snapshot, err error) error {
	snap.Error = err.Error()
	m.publish(snap)
	metrics.MonitorRefreshes.WithLabelValues("error").Inc()
	return err
}
