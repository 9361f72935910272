package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Event types handled for every sensor type.
const (
	EventBatteryStatus = device.ReportedBatteryStatus
	EventNetworkStatus = device.ReportedNetworkStatus
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

// Mutator runs a function on a live entry under the registry lock.
// *device.Registry implements it.
type Mutator interface {
	Mutate(ctx context.Context, id string, fn func(e *device.Entry) (bool, error)) (bool, error)
}

// HealthEvaluator recomputes an entry's health. *health.Monitor implements it.
type HealthEvaluator interface {
	Evaluate(e *device.Entry, now time.Time) bool
}

// Recorder stores applied events. *device.SQLiteHistoryRepository implements it.
type Recorder interface {
	RecordEvent(ctx context.Context, deviceID, eventType string, state device.State) error
}

// HandleResult describes the outcome of one event.
type HandleResult struct {
	// Known is false when the target is not in the registry.
	Known bool `json:"known"`

	// Applied is true when the event changed or confirmed entry state.
	Applied bool `json:"applied"`

	TargetID  string `json:"target_id"`
	EventType string `json:"event_type"`
}

// envelope is the webhook request body.
type envelope struct {
	Event *device.Event `json:"event"`
}

// Router maps inbound events to entry mutations.
type Router struct {
	entries Mutator
	types   device.TypeLookup
	health  HealthEvaluator
	history Recorder

	mu                sync.RWMutex
	lowBatteryPercent float64
	now               func() time.Time

	logger Logger
}

// NewRouter creates a router over entries.
func NewRouter(entries Mutator, types device.TypeLookup, health HealthEvaluator) *Router {
	return &Router{
		entries:           entries,
		types:             types,
		health:            health,
		lowBatteryPercent: device.DefaultLowBatteryPercent,
		now:               time.Now,
		logger:            noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetHistory records every applied event with the resulting state.
func (r *Router) SetHistory(rec Recorder) {
	r.history = rec
}

// SetLowBatteryPercent sets the threshold for batteryStatus events.
func (r *Router) SetLowBatteryPercent(pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lowBatteryPercent = pct
}

// SetClock replaces the time source. Used by tests.
func (r *Router) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Parse decodes a webhook body into an event.
func Parse(raw []byte) (device.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return device.Event{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if env.Event == nil {
		return device.Event{}, fmt.Errorf("%w: missing event", ErrParse)
	}
	if env.Event.TargetName == "" {
		return device.Event{}, fmt.Errorf("%w: missing targetName", ErrParse)
	}
	if env.Event.EventType == "" {
		return device.Event{}, fmt.Errorf("%w: missing eventType", ErrParse)
	}
	return *env.Event, nil
}

// Handle parses and applies one webhook body. An unknown target is not an
// error. Malformed bodies and undecodable event data wrap ErrParse.
func (r *Router) Handle(ctx context.Context, raw []byte) (HandleResult, error) {
	ev, err := Parse(raw)
	if err != nil {
		eventsTotal.WithLabelValues("", "parse_error").Inc()
		return HandleResult{}, err
	}
	return r.Apply(ctx, ev)
}

// Apply applies a parsed event.
func (r *Router) Apply(ctx context.Context, ev device.Event) (HandleResult, error) {
	result := HandleResult{TargetID: ev.TargetName, EventType: ev.EventType}

	r.mu.RLock()
	now := r.now()
	threshold := r.lowBatteryPercent
	r.mu.RUnlock()

	var snapshot device.State
	found, err := r.entries.Mutate(ctx, ev.TargetName, func(e *device.Entry) (bool, error) {
		// The device transmitted even if its payload is unusable.
		touched := e.Touch(now)
		applied, err := r.apply(e, ev, now, threshold)
		if err != nil {
			return touched, err
		}
		result.Applied = applied
		if applied {
			snapshot = e.DeepCopy().State
		}
		return applied || touched, nil
	})

	switch {
	case !found:
		eventsTotal.WithLabelValues(ev.EventType, "unknown_target").Inc()
		r.logger.Debug("event for unknown device dropped", "target", ev.TargetName, "event_type", ev.EventType)
		return result, nil
	case err != nil:
		eventsTotal.WithLabelValues(ev.EventType, "parse_error").Inc()
		r.logger.Warn("event data rejected", "target", ev.TargetName, "event_type", ev.EventType, "error", err)
		result.Known = true
		return result, err
	}

	result.Known = true
	if !result.Applied {
		eventsTotal.WithLabelValues(ev.EventType, "ignored").Inc()
		r.logger.Debug("event type not handled", "target", ev.TargetName, "event_type", ev.EventType)
		return result, nil
	}

	eventsTotal.WithLabelValues(ev.EventType, "applied").Inc()
	if r.history != nil {
		if err := r.history.RecordEvent(ctx, ev.TargetName, ev.EventType, snapshot); err != nil {
			r.logger.Warn("failed to record event history", "target", ev.TargetName, "error", err)
		}
	}
	return result, nil
}

// apply mutates e for one event. Caller holds the registry lock via Mutate.
func (r *Router) apply(e *device.Entry, ev device.Event, now time.Time, lowBattery float64) (bool, error) {
	switch ev.EventType {
	case EventBatteryStatus:
		var battery device.BatteryStatus
		ok, err := ev.DecodeData(EventBatteryStatus, &battery)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrParse, err)
		}
		if !ok {
			return false, fmt.Errorf("%w: missing data.batteryStatus", ErrParse)
		}
		e.BatteryLevel = battery.Percentage
		e.LowBattery = battery.Percentage < lowBattery
		r.health.Evaluate(e, now)
		return true, nil

	case EventNetworkStatus:
		var network device.NetworkStatus
		if _, err := ev.DecodeData(EventNetworkStatus, &network); err != nil {
			return false, fmt.Errorf("%w: %w", ErrParse, err)
		}
		e.Touch(network.UpdateTime)
		r.health.Evaluate(e, now)
		return true, nil
	}

	h, ok := r.types.Lookup(e.Type)
	if !ok {
		return false, nil
	}
	applied, err := h.HandleEvent(e, ev)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrParse, ev.EventType, err)
	}
	return applied, nil
}
