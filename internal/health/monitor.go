package health

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Defaults for the monitor.
const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultStaleThreshold = time.Hour
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sweeper visits every entry under the registry lock.
// *device.Registry implements it.
type Sweeper interface {
	Sweep(ctx context.Context, fn func(e *device.Entry) bool) device.SweepResult
}

// Config holds monitor settings. Zero values select the defaults.
type Config struct {
	SweepInterval  time.Duration
	StaleThreshold time.Duration
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Checked int `json:"checked"`
	Faulted int `json:"faulted"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// Monitor recomputes entry health on a fixed interval.
type Monitor struct {
	entries   Sweeper
	types     device.TypeLookup
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewMonitor creates a monitor over entries, resolving handlers through types.
func NewMonitor(entries Sweeper, types device.TypeLookup, cfg Config) *Monitor {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	threshold := cfg.StaleThreshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return &Monitor{
		entries:   entries,
		types:     types,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// SetClock replaces the time source. Used by tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// StaleThreshold returns the configured silence threshold.
func (m *Monitor) StaleThreshold() time.Duration {
	return m.threshold
}

// Evaluate applies the staleness rule to e at now and projects the result
// through the entry's type handler. It reports whether e changed.
// The caller must hold whatever lock guards e.
func (m *Monitor) Evaluate(e *device.Entry, now time.Time) bool {
	before := e.DeepCopy()

	e.Fault = now.Sub(e.LastEventAt) >= m.threshold
	e.Active = !e.Fault

	if h, ok := m.types.Lookup(e.Type); ok {
		h.UpdateHealth(e)
	}

	return before.Active != e.Active ||
		before.Fault != e.Fault ||
		!reflect.DeepEqual(before.State, e.State)
}

// SweepNow evaluates every entry once.
func (m *Monitor) SweepNow(ctx context.Context) SweepReport {
	now := m.now()
	faulted := 0

	result := m.entries.Sweep(ctx, func(e *device.Entry) bool {
		changed := m.Evaluate(e, now)
		if e.Fault {
			faulted++
		}
		return changed
	})

	faultedEntries.Set(float64(faulted))
	sweepsTotal.Inc()

	report := SweepReport{
		Checked: result.Visited,
		Faulted: faulted,
		Changed: result.Changed,
		Failed:  result.Failed,
	}
	if report.Changed > 0 || report.Failed > 0 {
		m.logger.Info("health sweep complete",
			"checked", report.Checked,
			"faulted", report.Faulted,
			"changed", report.Changed,
			"failed", report.Failed,
		)
	}
	return report
}

// Start begins sweeping every interval until ctx is cancelled or Stop is called.
// The first sweep runs after one interval.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop stops the monitor and waits for the loop to exit.
// Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-timer.C:
			m.safeSweep(ctx)
			timer.Reset(m.interval)
		}
	}
}

// safeSweep runs SweepNow, recovering a panic so the next sweep is still scheduled.
func (m *Monitor) safeSweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("health sweep panicked", "panic", fmt.Sprint(rec))
		}
	}()
	m.SweepNow(ctx)
}
