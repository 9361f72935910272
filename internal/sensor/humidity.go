package sensor

import (
	"fmt"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// TypeHumidity is the type tag of humidity sensors.
const TypeHumidity = "humidity"

// humidityReading is the reported and event payload under "humidity".
type humidityReading struct {
	Temperature      *float64 `json:"temperature"`
	RelativeHumidity *float64 `json:"relativeHumidity"`
}

// Humidity handles combined humidity and temperature sensors.
type Humidity struct{}

// Type returns "humidity".
func (Humidity) Type() string { return TypeHumidity }

// InitContext returns the reported readings, defaulting each to 0.
func (h Humidity) InitContext(d device.Descriptor) (device.State, error) {
	s := device.State{
		string(FieldCurrentTemperature):      0.0,
		string(FieldCurrentRelativeHumidity): 0.0,
	}
	return s, h.apply(s, d)
}

// ApplyDescriptor refreshes both readings from the descriptor.
func (h Humidity) ApplyDescriptor(e *device.Entry, d device.Descriptor) error {
	ensureState(e)
	setDefault(e.State, FieldCurrentTemperature, 0.0)
	setDefault(e.State, FieldCurrentRelativeHumidity, 0.0)
	return h.apply(e.State, d)
}

func (Humidity) apply(s device.State, d device.Descriptor) error {
	var r humidityReading
	ok, err := d.DecodeReported(TypeHumidity, &r)
	if err != nil || !ok {
		return err
	}
	store(s, r)
	return nil
}

// HandleEvent applies "humidity" events. Either reading may be absent,
// but not both.
func (Humidity) HandleEvent(e *device.Entry, ev device.Event) (bool, error) {
	if ev.EventType != TypeHumidity {
		return false, nil
	}

	var r humidityReading
	ok, err := ev.DecodeData(TypeHumidity, &r)
	if err != nil {
		return false, err
	}
	if !ok || (r.Temperature == nil && r.RelativeHumidity == nil) {
		return false, fmt.Errorf("%w: humidity", ErrMissingValue)
	}

	ensureState(e)
	store(e.State, r)
	return true, nil
}

func store(s device.State, r humidityReading) {
	if r.Temperature != nil {
		s[string(FieldCurrentTemperature)] = clampRound(*r.Temperature, minTemperature, maxTemperature)
	}
	if r.RelativeHumidity != nil {
		s[string(FieldCurrentRelativeHumidity)] = clampRound(*r.RelativeHumidity, minHumidity, maxHumidity)
	}
}

// UpdateHealth writes the status fields.
func (Humidity) UpdateHealth(e *device.Entry) { writeStatus(e) }

// AllowedFields returns both readings and the status fields.
func (Humidity) AllowedFields() []device.Field {
	return withStatus(FieldCurrentTemperature, FieldCurrentRelativeHumidity)
}
