package sensor

import (
	"math"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// State fields exposed by the built-in handlers.
const (
	FieldCurrentTemperature      device.Field = "currentTemperature"
	FieldCurrentRelativeHumidity device.Field = "currentRelativeHumidity"
	FieldObjectDetected          device.Field = "objectDetected"
	FieldWaterDetected           device.Field = "waterDetected"
	FieldSwitchEvent             device.Field = "programmableSwitchEvent"
	FieldLastTouchAt             device.Field = "lastTouchAt"

	FieldStatusActive     device.Field = "statusActive"
	FieldStatusFault      device.Field = "statusFault"
	FieldStatusLowBattery device.Field = "statusLowBattery"
)

// Presence states reported by proximity and water sensors.
const (
	StatePresent    = "PRESENT"
	StateNotPresent = "NOT_PRESENT"
)

// SinglePress is the programmableSwitchEvent value for one touch.
const SinglePress = 0.0

// Reading ranges.
const (
	minTemperature = -100.0
	maxTemperature = 100.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
)

// statusFields are the health projections shared by continuous sensors.
var statusFields = []device.Field{FieldStatusActive, FieldStatusFault, FieldStatusLowBattery}

// writeStatus projects the entry's health booleans onto the status fields.
func writeStatus(e *device.Entry) {
	ensureState(e)
	e.State[string(FieldStatusActive)] = e.Active
	e.State[string(FieldStatusFault)] = e.Fault
	e.State[string(FieldStatusLowBattery)] = e.LowBattery
}

func ensureState(e *device.Entry) {
	if e.State == nil {
		e.State = device.State{}
	}
}

// setDefault stores v under f unless a value is already present.
func setDefault(s device.State, f device.Field, v any) {
	if _, ok := s[string(f)]; !ok {
		s[string(f)] = v
	}
}

// withStatus appends the shared status fields to a type's own fields.
func withStatus(fields ...device.Field) []device.Field {
	return append(fields, statusFields...)
}

// clampRound limits v to [lo, hi] and rounds to two decimal places.
func clampRound(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(lo, math.Min(hi, v))
	return math.Round(v*100) / 100
}

// presence parses a PRESENT/NOT_PRESENT state.
func presence(state string) (bool, error) {
	switch state {
	case StatePresent:
		return true, nil
	case StateNotPresent:
		return false, nil
	default:
		return false, ErrUnknownState
	}
}
