package sensor

import (
	"fmt"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// Type tags and reported keys of presence-style sensors.
const (
	TypeProximity     = "proximity"
	TypeWaterDetector = "waterDetector"

	keyObjectPresent = "objectPresent"
	keyWaterPresent  = "waterPresent"
)

// presenceReading is the reported and event payload of presence sensors.
type presenceReading struct {
	State string `json:"state"`
}

// presenceHandler maps a PRESENT/NOT_PRESENT payload onto one bool field.
// PRESENT is true.
type presenceHandler struct {
	key   string
	field device.Field
}

func (h presenceHandler) initContext(d device.Descriptor) (device.State, error) {
	s := device.State{string(h.field): false}
	return s, h.apply(s, d)
}

func (h presenceHandler) applyDescriptor(e *device.Entry, d device.Descriptor) error {
	ensureState(e)
	setDefault(e.State, h.field, false)
	return h.apply(e.State, d)
}

func (h presenceHandler) apply(s device.State, d device.Descriptor) error {
	var r presenceReading
	ok, err := d.DecodeReported(h.key, &r)
	if err != nil || !ok {
		return err
	}
	present, err := presence(r.State)
	if err != nil {
		return fmt.Errorf("%w: %s.state %q", device.ErrMalformedDescriptor, h.key, r.State)
	}
	s[string(h.field)] = present
	return nil
}

func (h presenceHandler) handleEvent(e *device.Entry, ev device.Event) (bool, error) {
	if ev.EventType != h.key {
		return false, nil
	}

	var r presenceReading
	ok, err := ev.DecodeData(h.key, &r)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingValue, h.key)
	}
	present, err := presence(r.State)
	if err != nil {
		return false, fmt.Errorf("%s.state %q: %w", h.key, r.State, err)
	}

	ensureState(e)
	e.State[string(h.field)] = present
	return true, nil
}

// Proximity handles object-presence sensors. objectDetected is true when
// the sensor reports PRESENT.
type Proximity struct{}

var proximity = presenceHandler{key: keyObjectPresent, field: FieldObjectDetected}

// Type returns "proximity".
func (Proximity) Type() string { return TypeProximity }

// InitContext returns objectDetected, false when unreported.
func (Proximity) InitContext(d device.Descriptor) (device.State, error) {
	return proximity.initContext(d)
}

// ApplyDescriptor refreshes objectDetected.
func (Proximity) ApplyDescriptor(e *device.Entry, d device.Descriptor) error {
	return proximity.applyDescriptor(e, d)
}

// HandleEvent applies "objectPresent" events.
func (Proximity) HandleEvent(e *device.Entry, ev device.Event) (bool, error) {
	return proximity.handleEvent(e, ev)
}

// UpdateHealth writes the status fields.
func (Proximity) UpdateHealth(e *device.Entry) { writeStatus(e) }

// AllowedFields returns objectDetected and the status fields.
func (Proximity) AllowedFields() []device.Field {
	return withStatus(FieldObjectDetected)
}

// WaterDetector handles water-presence sensors. waterDetected is true when
// the sensor reports PRESENT.
type WaterDetector struct{}

var water = presenceHandler{key: keyWaterPresent, field: FieldWaterDetected}

// Type returns "waterDetector".
func (WaterDetector) Type() string { return TypeWaterDetector }

// InitContext returns waterDetected, false when unreported.
func (WaterDetector) InitContext(d device.Descriptor) (device.State, error) {
	return water.initContext(d)
}

// ApplyDescriptor refreshes waterDetected.
func (WaterDetector) ApplyDescriptor(e *device.Entry, d device.Descriptor) error {
	return water.applyDescriptor(e, d)
}

// HandleEvent applies "waterPresent" events.
func (WaterDetector) HandleEvent(e *device.Entry, ev device.Event) (bool, error) {
	return water.handleEvent(e, ev)
}

// UpdateHealth writes the status fields.
func (WaterDetector) UpdateHealth(e *device.Entry) { writeStatus(e) }

// AllowedFields returns waterDetected and the status fields.
func (WaterDetector) AllowedFields() []device.Field {
	return withStatus(FieldWaterDetected)
}
