package presenter

import (
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Snapshot is the external view of an entry shared by every consumer.
type Snapshot struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	SerialNumber string         `json:"serial_number"`
	Manufacturer string         `json:"manufacturer"`
	Active       bool           `json:"active"`
	Fault        bool           `json:"fault"`
	LowBattery   bool           `json:"low_battery"`
	BatteryLevel float64        `json:"battery_level"`
	LastEventAt  *time.Time     `json:"last_event_at,omitempty"`
	State        map[string]any `json:"state"`
}

// NewSnapshot builds the external view of e. The state map is copied.
func NewSnapshot(e device.Entry) Snapshot {
	s := Snapshot{
		ID:           e.ID,
		Name:         e.Name,
		Type:         e.Type,
		SerialNumber: e.SerialNumber,
		Manufacturer: device.Manufacturer,
		Active:       e.Active,
		Fault:        e.Fault,
		LowBattery:   e.LowBattery,
		BatteryLevel: e.BatteryLevel,
		State:        map[string]any{},
	}
	if s.SerialNumber == "" {
		s.SerialNumber = device.SerialNumber(e.ID)
	}
	if !e.LastEventAt.IsZero() {
		t := e.LastEventAt.UTC()
		s.LastEventAt = &t
	}
	if e.State != nil {
		s.State = e.DeepCopy().State
	}
	return s
}

// readingFields returns the numeric and boolean state values plus the
// shared battery and health values, keyed for InfluxDB.
func readingFields(e device.Entry) map[string]any {
	fields := map[string]any{
		"battery_level": e.BatteryLevel,
		"active":        e.Active,
		"fault":         e.Fault,
	}
	for k, v := range e.State {
		switch val := v.(type) {
		case float64, float32, int, int64, bool:
			fields[k] = val
		}
	}
	return fields
}
