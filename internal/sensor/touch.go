package sensor

import (
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// TypeTouch is the type tag of touch sensors.
const TypeTouch = "touch"

// touchReading is the reported and event payload under "touch".
type touchReading struct {
	UpdateTime time.Time `json:"updateTime"`
}

// Touch handles touch sensors. A touch has no continuous state: each event
// is a single press of a stateless switch.
type Touch struct{}

// Type returns "touch".
func (Touch) Type() string { return TypeTouch }

// InitContext records the last reported touch time, if any.
func (h Touch) InitContext(d device.Descriptor) (device.State, error) {
	s := device.State{}
	return s, h.apply(s, d)
}

// ApplyDescriptor refreshes lastTouchAt.
func (h Touch) ApplyDescriptor(e *device.Entry, d device.Descriptor) error {
	ensureState(e)
	return h.apply(e.State, d)
}

func (Touch) apply(s device.State, d device.Descriptor) error {
	var r touchReading
	ok, err := d.DecodeReported(TypeTouch, &r)
	if err != nil || !ok {
		return err
	}
	if !r.UpdateTime.IsZero() {
		s[string(FieldLastTouchAt)] = r.UpdateTime.UTC().Format(time.RFC3339Nano)
	}
	return nil
}

// HandleEvent applies "touch" events as a single press. The touch time is
// taken from the payload, falling back to the event timestamp.
func (Touch) HandleEvent(e *device.Entry, ev device.Event) (bool, error) {
	if ev.EventType != TypeTouch {
		return false, nil
	}

	var r touchReading
	if _, err := ev.DecodeData(TypeTouch, &r); err != nil {
		return false, err
	}

	ensureState(e)
	e.State[string(FieldSwitchEvent)] = SinglePress
	at := r.UpdateTime
	if at.IsZero() {
		at = ev.Timestamp
	}
	if !at.IsZero() {
		e.State[string(FieldLastTouchAt)] = at.UTC().Format(time.RFC3339Nano)
	}
	return true, nil
}

// UpdateHealth writes statusLowBattery; a switch has no active or fault status.
func (Touch) UpdateHealth(e *device.Entry) {
	ensureState(e)
	e.State[string(FieldStatusLowBattery)] = e.LowBattery
}

// AllowedFields returns the switch event, last touch time and low battery status.
func (Touch) AllowedFields() []device.Field {
	return []device.Field{FieldSwitchEvent, FieldLastTouchAt, FieldStatusLowBattery}
}
