package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/influxdb"
)

type fakePublisher struct {
	mu       sync.Mutex
	retained map[string][]byte
	cleared  []string
	err      error
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.retained == nil {
		p.retained = map[string][]byte{}
	}
	p.retained[topic] = payload
	return nil
}

func (p *fakePublisher) ClearRetained(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.retained, topic)
	p.cleared = append(p.cleared, topic)
	return nil
}

type broadcast struct {
	msgType string
	payload any
}

type fakeHub struct {
	mu   sync.Mutex
	msgs []broadcast
}

func (h *fakeHub) Broadcast(msgType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, broadcast{msgType, payload})
}

type fakeWriter struct {
	mu       sync.Mutex
	readings []influxdb.Reading
}

func (w *fakeWriter) WriteReading(r influxdb.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = append(w.readings, r)
}

type panickingSink struct{}

func (panickingSink) Name() string { return "panicky" }
func (panickingSink) Deliver(context.Context, Notification) error {
	panic("sink exploded")
}

type blockingSink struct {
	release chan struct{}
}

func (blockingSink) Name() string { return "blocking" }
func (s blockingSink) Deliver(context.Context, Notification) error {
	<-s.release
	return nil
}

func temperatureEntry() device.Entry {
	return device.Entry{
		ID:           "projects/p1/devices/d1",
		Name:         "Office",
		Type:         "temperature",
		SerialNumber: "d1",
		Active:       true,
		BatteryLevel: 80,
		LastEventAt:  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		State: device.State{
			"currentTemperature": 21.5,
			"statusActive":       true,
			"note":               "ignored by influx",
		},
	}
}

func TestNewSnapshot(t *testing.T) {
	e := temperatureEntry()
	e.SerialNumber = ""
	snap := NewSnapshot(e)

	if snap.SerialNumber != "d1" {
		t.Errorf("SerialNumber = %q, want fallback d1", snap.SerialNumber)
	}
	if snap.Manufacturer != device.Manufacturer {
		t.Errorf("Manufacturer = %q", snap.Manufacturer)
	}
	if snap.LastEventAt == nil || !snap.LastEventAt.Equal(e.LastEventAt) {
		t.Errorf("LastEventAt = %v", snap.LastEventAt)
	}

	snap.State["currentTemperature"] = 99.0
	if e.State["currentTemperature"] != 21.5 {
		t.Error("snapshot state aliases the entry state")
	}

	empty := NewSnapshot(device.Entry{ID: "x"})
	if empty.State == nil || empty.LastEventAt != nil {
		t.Errorf("empty snapshot = %+v, want non-nil state and no timestamp", empty)
	}
}

func TestReadingFields(t *testing.T) {
	fields := readingFields(temperatureEntry())

	want := map[string]any{
		"battery_level":      80.0,
		"active":             true,
		"fault":              false,
		"currentTemperature": 21.5,
		"statusActive":       true,
	}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %v, want %v", k, fields[k], v)
		}
	}
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	pub := &fakePublisher{}
	hub := &fakeHub{}
	writer := &fakeWriter{}

	f := NewFanout(0, NewMQTTSink(pub), NewHubSink(hub), NewInfluxSink(writer))
	f.Start(context.Background())

	e := temperatureEntry()
	f.EntryRegistered(*e.DeepCopy())
	e.State["currentTemperature"] = 22.0
	f.EntryUpdated(e)
	f.EntryUnregistered(e)
	f.Stop()

	// MQTT: published then cleared.
	if len(pub.cleared) != 1 || pub.cleared[0] != "sensorbridge/entry/d1/state" {
		t.Errorf("cleared = %v", pub.cleared)
	}
	if _, ok := pub.retained["sensorbridge/entry/d1/state"]; ok {
		t.Error("retained state not cleared on unregister")
	}

	// Hub: all three kinds in order.
	wantKinds := []string{"entry.registered", "entry.updated", "entry.unregistered"}
	if len(hub.msgs) != len(wantKinds) {
		t.Fatalf("hub messages = %d, want %d", len(hub.msgs), len(wantKinds))
	}
	for i, k := range wantKinds {
		if hub.msgs[i].msgType != k {
			t.Errorf("hub msg %d type = %q, want %q", i, hub.msgs[i].msgType, k)
		}
	}
	if snap, ok := hub.msgs[1].payload.(Snapshot); !ok || snap.State["currentTemperature"] != 22.0 {
		t.Errorf("hub update payload = %+v", hub.msgs[1].payload)
	}

	// Influx: registration and update only.
	if len(writer.readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(writer.readings))
	}
	r := writer.readings[1]
	if r.DeviceID != e.ID || r.Type != "temperature" || r.Fields["currentTemperature"] != 22.0 {
		t.Errorf("reading = %+v", r)
	}
}

func TestMQTTSink_PayloadIsSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub)

	err := sink.Deliver(context.Background(), Notification{Kind: KindUpdated, Entry: temperatureEntry()})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	var got Snapshot
	if err := json.Unmarshal(pub.retained["sensorbridge/entry/d1/state"], &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != "projects/p1/devices/d1" || got.State["currentTemperature"] != 21.5 {
		t.Errorf("payload = %+v", got)
	}
}

func TestFanout_SinkFailureIsolated(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	hub := &fakeHub{}

	f := NewFanout(0, NewMQTTSink(pub), panickingSink{}, NewHubSink(hub))
	f.Start(context.Background())
	f.EntryUpdated(temperatureEntry())
	f.Stop()

	if len(hub.msgs) != 1 {
		t.Errorf("hub messages = %d, want 1 despite failing sinks", len(hub.msgs))
	}
}

func hubKinds(h *fakeHub) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]string, 0, len(h.msgs))
	for _, m := range h.msgs {
		kinds = append(kinds, m.msgType)
	}
	return kinds
}

func entryWithID(serial string) device.Entry {
	e := temperatureEntry()
	e.ID = "projects/p1/devices/" + serial
	e.SerialNumber = serial
	return e
}

func TestFanout_UpdatesCoalesce(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	hub := &fakeHub{}

	f := NewFanout(1, sink, NewHubSink(hub))
	f.Start(context.Background())

	// The worker blocks on the first notification; later updates for the
	// same entry fold into one without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			e := temperatureEntry()
			e.State["currentTemperature"] = float64(20 + i)
			f.EntryUpdated(e)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked while the worker was busy")
	}

	close(sink.release)
	f.Stop()

	if n := len(hub.msgs); n < 1 || n > 2 {
		t.Fatalf("delivered = %d, want 1 or 2", n)
	}
	last := hub.msgs[len(hub.msgs)-1].payload.(Snapshot)
	if last.State["currentTemperature"] != 29.0 {
		t.Errorf("last snapshot temperature = %v, want 29", last.State["currentTemperature"])
	}
}

func TestFanout_UnregisterSurvivesUpdateBurst(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	hub := &fakeHub{}
	pub := &fakePublisher{}

	f := NewFanout(2, sink, NewHubSink(hub), NewMQTTSink(pub))
	f.Start(context.Background())

	for i := 0; i < 6; i++ {
		f.EntryUpdated(temperatureEntry())
	}
	f.EntryUnregistered(temperatureEntry())

	close(sink.release)
	f.Stop()

	kinds := hubKinds(hub)
	if len(kinds) == 0 || kinds[len(kinds)-1] != string(KindUnregistered) {
		t.Fatalf("hub saw %v, want entry.unregistered last", kinds)
	}
	if _, ok := pub.retained["sensorbridge/entry/d1/state"]; ok {
		t.Error("retained state survived unregistration")
	}
}

func TestFanout_FullQueueDropsOnlyUpdates(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	hub := &fakeHub{}

	f := NewFanout(2, sink, NewHubSink(hub))
	f.Start(context.Background())

	for _, serial := range []string{"d1", "d2", "d3", "d4", "d5"} {
		f.EntryUpdated(entryWithID(serial))
	}
	f.EntryRegistered(entryWithID("d6"))
	f.EntryUnregistered(entryWithID("d1"))

	close(sink.release)
	f.Stop()

	var updates, registered int
	kinds := hubKinds(hub)
	for _, k := range kinds {
		switch k {
		case string(KindUpdated):
			updates++
		case string(KindRegistered):
			registered++
		}
	}
	if updates == 0 || updates >= 5 {
		t.Errorf("updates delivered = %d, want some dropped", updates)
	}
	if registered != 1 {
		t.Errorf("registrations delivered = %d, want 1", registered)
	}
	if kinds[len(kinds)-1] != string(KindUnregistered) {
		t.Errorf("hub saw %v, want entry.unregistered last", kinds)
	}
}

func TestFanout_NoSinks(t *testing.T) {
	f := NewFanout(1)
	for i := 0; i < 5; i++ {
		f.EntryUpdated(temperatureEntry())
	}
	if f.Pending() != 0 {
		t.Error("notifications queued with no sinks")
	}
	if len(f.Sinks()) != 0 {
		t.Error("Sinks() not empty")
	}
}

func TestFanout_ContextCancelDrains(t *testing.T) {
	hub := &fakeHub{}
	f := NewFanout(8, NewHubSink(hub))

	f.EntryRegistered(temperatureEntry())
	f.EntryUpdated(temperatureEntry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Start(ctx)
	f.Stop()

	if len(hub.msgs) != 2 {
		t.Errorf("delivered = %d, want 2", len(hub.msgs))
	}
}
