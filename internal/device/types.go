package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Manufacturer is reported for every entry exposed to presenters.
const Manufacturer = "Disruptive Technologies"

// Reported-state keys shared by every sensor type.
const (
	ReportedBatteryStatus = "batteryStatus"
	ReportedNetworkStatus = "networkStatus"
)

// State holds the type-specific payload of an entry as a JSON map.
// Keys are Field names; only the matching TypeHandler interprets them.
//
// Examples:
//
//	temperature: {"currentTemperature": 21.5, "statusActive": true, "statusFault": false}
//	proximity:   {"objectDetected": true, "statusLowBattery": false}
type State map[string]any

// Field identifies an externally-visible value of an entry's State.
type Field string

// Descriptor is a point-in-time snapshot of a device from the cloud inventory.
// It is superseded wholesale on every fetch.
type Descriptor struct {
	// ID is the cloud resource name, e.g. "projects/p1/devices/d1".
	ID string `json:"name"`

	// Type is the sensor type tag, e.g. "temperature".
	Type string `json:"type"`

	// Labels are the free-form labels attached in the cloud console.
	Labels map[string]string `json:"labels,omitempty"`

	// Reported maps reported-state keys to their raw JSON payloads.
	Reported map[string]json.RawMessage `json:"reported,omitempty"`
}

// Label returns the display label, falling back to the serial number.
func (d Descriptor) Label() string {
	if name := strings.TrimSpace(d.Labels["name"]); name != "" {
		return name
	}
	return SerialNumber(d.ID)
}

// DecodeReported unmarshals the reported payload stored under key into dst.
// It returns false with a nil error when the key is absent.
func (d Descriptor) DecodeReported(key string, dst any) (bool, error) {
	raw, ok := d.Reported[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, key, err)
	}
	return true, nil
}

// BatteryStatus is the reported or event payload for battery level.
type BatteryStatus struct {
	Percentage float64   `json:"percentage"`
	UpdateTime time.Time `json:"updateTime"`
}

// NetworkStatus is the reported or event payload for radio connectivity.
type NetworkStatus struct {
	SignalStrength   int       `json:"signalStrength"`
	RSSI             int       `json:"rssi"`
	TransmissionMode string    `json:"transmissionMode"`
	UpdateTime       time.Time `json:"updateTime"`
}

// Event is an inbound webhook event after envelope parsing.
type Event struct {
	ID         string                     `json:"eventId,omitempty"`
	TargetName string                     `json:"targetName"`
	EventType  string                     `json:"eventType"`
	Data       map[string]json.RawMessage `json:"data,omitempty"`
	Labels     map[string]string          `json:"labels,omitempty"`
	Timestamp  time.Time                  `json:"timestamp,omitempty"`
}

// DecodeData unmarshals the event data stored under key into dst.
// It returns false with a nil error when the key is absent.
func (e Event) DecodeData(key string, dst any) (bool, error) {
	raw, ok := e.Data[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Entry is the registry's durable representation of a device.
// This matches the sensor_entries table in migrations.
type Entry struct {
	// Identity
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	SerialNumber string `json:"serial_number"`

	// Liveness
	LastEventAt time.Time `json:"last_event_at"`
	Active      bool      `json:"active"`
	Fault       bool      `json:"fault"`

	// Battery
	LowBattery   bool    `json:"low_battery"`
	BatteryLevel float64 `json:"battery_level"`

	// PendingRemoval is set for entries restored at startup until a
	// reconciliation confirms them upstream. It is never persisted.
	PendingRemoval bool `json:"pending_removal"`

	// State is owned by the TypeHandler registered for Type.
	State State `json:"state"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Entry.
func (e *Entry) DeepCopy() *Entry {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.State = deepCopyMap(e.State)
	return &cpy
}

// Touch advances LastEventAt to t. Earlier timestamps are ignored so the
// liveness clock never moves backward. It reports whether the value moved.
func (e *Entry) Touch(t time.Time) bool {
	if t.IsZero() || !t.After(e.LastEventAt) {
		return false
	}
	e.LastEventAt = t
	return true
}

// SerialNumber returns the part of a resource name after "/devices/".
// Identifiers without that segment are returned unchanged.
func SerialNumber(id string) string {
	if i := strings.LastIndex(id, "/devices/"); i >= 0 {
		return id[i+len("/devices/"):]
	}
	return id
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case State:
		return State(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
