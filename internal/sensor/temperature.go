package sensor

import (
	"fmt"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// TypeTemperature is the type tag of temperature sensors.
const TypeTemperature = "temperature"

// temperatureReading is the reported and event payload under "temperature".
type temperatureReading struct {
	Value *float64 `json:"value"`
}

// Temperature handles temperature sensors.
type Temperature struct{}

// Type returns "temperature".
func (Temperature) Type() string { return TypeTemperature }

// InitContext returns the reported temperature, or 0 when missing.
func (h Temperature) InitContext(d device.Descriptor) (device.State, error) {
	s := device.State{string(FieldCurrentTemperature): 0.0}
	return s, h.apply(s, d)
}

// ApplyDescriptor refreshes currentTemperature from the descriptor.
func (h Temperature) ApplyDescriptor(e *device.Entry, d device.Descriptor) error {
	ensureState(e)
	setDefault(e.State, FieldCurrentTemperature, 0.0)
	return h.apply(e.State, d)
}

func (Temperature) apply(s device.State, d device.Descriptor) error {
	var r temperatureReading
	ok, err := d.DecodeReported(TypeTemperature, &r)
	if err != nil {
		return err
	}
	if ok && r.Value != nil {
		s[string(FieldCurrentTemperature)] = clampRound(*r.Value, minTemperature, maxTemperature)
	}
	return nil
}

// HandleEvent applies "temperature" events.
func (Temperature) HandleEvent(e *device.Entry, ev device.Event) (bool, error) {
	if ev.EventType != TypeTemperature {
		return false, nil
	}

	var r temperatureReading
	ok, err := ev.DecodeData(TypeTemperature, &r)
	if err != nil {
		return false, err
	}
	if !ok || r.Value == nil {
		return false, fmt.Errorf("%w: temperature.value", ErrMissingValue)
	}

	ensureState(e)
	e.State[string(FieldCurrentTemperature)] = clampRound(*r.Value, minTemperature, maxTemperature)
	return true, nil
}

// UpdateHealth writes the status fields.
func (Temperature) UpdateHealth(e *device.Entry) { writeStatus(e) }

// AllowedFields returns currentTemperature and the status fields.
func (Temperature) AllowedFields() []device.Field {
	return withStatus(FieldCurrentTemperature)
}
