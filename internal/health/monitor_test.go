package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
	"github.com/nerrad567/sensorbridge/internal/sensor"
)

var testStart = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable time source shared by the registry and monitor.
type fakeClock struct {
	now atomic.Pointer[time.Time]
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.Set(t)
	return c
}

func (c *fakeClock) Set(t time.Time) { c.now.Store(&t) }
func (c *fakeClock) Now() time.Time  { return *c.now.Load() }

// brokenHandler panics when asked to project health.
type brokenHandler struct{}

func (brokenHandler) Type() string { return "broken" }
func (brokenHandler) InitContext(device.Descriptor) (device.State, error) {
	return device.State{}, nil
}
func (brokenHandler) ApplyDescriptor(*device.Entry, device.Descriptor) error { return nil }
func (brokenHandler) HandleEvent(*device.Entry, device.Event) (bool, error) { return false, nil }
func (brokenHandler) UpdateHealth(e *device.Entry) {
	if e.Fault {
		panic("broken handler")
	}
}
func (brokenHandler) AllowedFields() []device.Field { return nil }

func setup(t *testing.T, descriptors ...device.Descriptor) (*device.Registry, *Monitor, *fakeClock) {
	t.Helper()

	types := sensor.NewDefaultRegistry()
	if err := types.Register(brokenHandler{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	clock := newFakeClock(testStart)
	reg := device.NewRegistry(types, nil, device.NewExclusionPolicy(nil, nil))
	reg.SetClock(clock.Now)
	reg.Reconcile(context.Background(), descriptors)

	mon := NewMonitor(reg, types, Config{StaleThreshold: time.Hour})
	mon.SetClock(clock.Now)
	return reg, mon, clock
}

func temperature(id string) device.Descriptor {
	return device.Descriptor{ID: "projects/p/devices/" + id, Type: sensor.TypeTemperature}
}

func TestSweepNow_StaleEntryFaults(t *testing.T) {
	ctx := context.Background()
	reg, mon, clock := setup(t, temperature("t1"))
	id := "projects/p/devices/t1"

	clock.Set(testStart.Add(59 * time.Minute))
	report := mon.SweepNow(ctx)
	if report.Checked != 1 || report.Faulted != 0 || report.Changed != 0 {
		t.Errorf("before threshold: report = %+v, want 1 checked, 0 faulted, 0 changed", report)
	}

	clock.Set(testStart.Add(time.Hour))
	report = mon.SweepNow(ctx)
	if report.Faulted != 1 || report.Changed != 1 {
		t.Errorf("at threshold: report = %+v, want 1 faulted, 1 changed", report)
	}

	e, _ := reg.Get(id)
	if !e.Fault || e.Active {
		t.Errorf("entry Fault = %v, Active = %v, want true, false", e.Fault, e.Active)
	}
	if e.State[string(sensor.FieldStatusFault)] != true || e.State[string(sensor.FieldStatusActive)] != false {
		t.Errorf("state not projected: %v", e.State)
	}
}

func TestSweepNow_EventClearsFault(t *testing.T) {
	ctx := context.Background()
	reg, mon, clock := setup(t, temperature("t1"))
	id := "projects/p/devices/t1"

	clock.Set(testStart.Add(2 * time.Hour))
	mon.SweepNow(ctx)
	if e, _ := reg.Get(id); !e.Fault {
		t.Fatal("entry not faulted after 2h of silence")
	}

	eventAt := testStart.Add(2*time.Hour + time.Minute)
	clock.Set(eventAt)
	if _, err := reg.Mutate(ctx, id, func(e *device.Entry) (bool, error) {
		return e.Touch(eventAt), nil
	}); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	clock.Set(eventAt.Add(5 * time.Minute))
	report := mon.SweepNow(ctx)
	if report.Faulted != 0 {
		t.Errorf("Faulted = %d, want 0", report.Faulted)
	}
	if e, _ := reg.Get(id); e.Fault || !e.Active {
		t.Errorf("entry Fault = %v, Active = %v, want false, true", e.Fault, e.Active)
	}
}

func TestSweepNow_PanicIsolated(t *testing.T) {
	reg, mon, clock := setup(t,
		device.Descriptor{ID: "projects/p/devices/b1", Type: "broken"},
		temperature("t1"),
	)

	clock.Set(testStart.Add(3 * time.Hour))
	report := mon.SweepNow(context.Background())
	if report.Checked != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 checked, 1 failed", report)
	}
	if e, _ := reg.Get("projects/p/devices/t1"); !e.Fault {
		t.Error("healthy handler's entry not evaluated after another entry panicked")
	}
}

func TestEvaluate_TouchKeepsNoActiveField(t *testing.T) {
	_, mon, _ := setup(t)
	e := &device.Entry{
		ID:          "projects/p/devices/x1",
		Type:        sensor.TypeTouch,
		LastEventAt: testStart,
		Active:      true,
		LowBattery:  true,
		State:       device.State{},
	}

	if !mon.Evaluate(e, testStart.Add(2*time.Hour)) {
		t.Error("Evaluate() = false, want true")
	}
	if _, ok := e.State[string(sensor.FieldStatusActive)]; ok {
		t.Error("touch entry gained statusActive")
	}
	if e.State[string(sensor.FieldStatusLowBattery)] != true {
		t.Errorf("statusLowBattery = %v, want true", e.State[string(sensor.FieldStatusLowBattery)])
	}
	if mon.Evaluate(e, testStart.Add(3*time.Hour)) {
		t.Error("second Evaluate() reported a change")
	}
}

// panickySweeper panics on its first sweep and counts every call.
type panickySweeper struct {
	calls atomic.Int32
}

func (s *panickySweeper) Sweep(context.Context, func(*device.Entry) bool) device.SweepResult {
	if s.calls.Add(1) == 1 {
		panic("first sweep")
	}
	return device.SweepResult{}
}

func TestMonitor_ReschedulesAfterPanic(t *testing.T) {
	sweeper := &panickySweeper{}
	mon := NewMonitor(sweeper, sensor.NewDefaultRegistry(), Config{SweepInterval: 5 * time.Millisecond})
	mon.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	mon.Stop()
	mon.Stop()

	if got := sweeper.calls.Load(); got < 3 {
		t.Errorf("sweeps = %d, want at least 3 after a panicking sweep", got)
	}
}

func TestNewMonitor_Defaults(t *testing.T) {
	mon := NewMonitor(&panickySweeper{}, sensor.NewDefaultRegistry(), Config{})
	if mon.interval != DefaultSweepInterval || mon.StaleThreshold() != DefaultStaleThreshold {
		t.Errorf("interval = %v, threshold = %v", mon.interval, mon.StaleThreshold())
	}
}
