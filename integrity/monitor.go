package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Alert is one integrity finding surfaced to an external sink (email,
// webhook, chat per spec §4.9), timestamped at emission.
type Alert struct {
	At       time.Time
	Level    Level
	Status   Status
	Finding  Finding
	Severity string
}

// AlertSink receives alerts. Implementations must not block the monitor for
// long, mirroring core.EventSink's contract.
type AlertSink interface {
	Notify(Alert)
}

// ChannelAlertSink is an in-process, channel-backed AlertSink used by tests
// and as the default local sink; a deployment wires a pluggable external
// sink (email/webhook/chat) behind the same interface per spec §6.
type ChannelAlertSink struct {
	ch chan Alert
}

// NewChannelAlertSink builds a sink with the given buffer; Notify drops the
// oldest buffered alert on overflow rather than blocking the monitor,
// matching spec §5's "bounded queues... drop Oldest" discipline.
func NewChannelAlertSink(buffer int) *ChannelAlertSink {
	return &ChannelAlertSink{ch: make(chan Alert, buffer)}
}

func (s *ChannelAlertSink) Notify(a Alert) {
	select {
	case s.ch <- a:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- a:
		default:
		}
	}
}

// Alerts exposes the receive side for consumers (tests, a bridge to an
// external sink).
func (s *ChannelAlertSink) Alerts() <-chan Alert { return s.ch }

// Monitor runs Validator.Validate on a fixed interval/level in the
// background, emitting one alert per non-Info finding. Mirrors the
// teacher's SyncManager Start/Stop/background-loop shape
// (core/blockchain_synchronization.go).
type Monitor struct {
	logger    *logrus.Logger
	validator *Validator
	sink      AlertSink
	level     Level
	interval  time.Duration

	mu     sync.Mutex
	active bool
	quit   chan struct{}

	lastReport Report
}

// NewMonitor wires a background monitor. interval <= 0 defaults to 30s.
func NewMonitor(lg *logrus.Logger, validator *Validator, sink AlertSink, level Level, interval time.Duration) *Monitor {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{logger: lg, validator: validator, sink: sink, level: level, interval: interval}
}

// Start launches the monitor loop; it returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.quit = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	m.logger.Info("integrity monitor started")
}

// Stop terminates the background loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	m.active = false
	m.mu.Unlock()
	m.logger.Info("integrity monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case <-ticker.C:
			m.runOnce()
		}
	}
}

func (m *Monitor) runOnce() {
	report := m.validator.Validate(m.level)
	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()

	if m.sink == nil {
		return
	}
	for _, f := range report.Findings {
		if f.Severity == "Info" {
			continue
		}
		m.sink.Notify(Alert{At: time.Now().UTC(), Level: report.Level, Status: report.Status, Finding: f, Severity: f.Severity})
	}
}

// LastReport returns the most recently completed run's result.
func (m *Monitor) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}
