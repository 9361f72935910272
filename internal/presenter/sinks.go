package presenter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/sensorbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/mqtt"
)

// RetainedPublisher is implemented by *mqtt.Client.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
}

// MQTTSink publishes entry snapshots as retained JSON.
type MQTTSink struct {
	pub RetainedPublisher
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(pub RetainedPublisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (*MQTTSink) Name() string { return "mqtt" }

// Deliver implements Sink.
func (s *MQTTSink) Deliver(_ context.Context, n Notification) error {
	snap := NewSnapshot(n.Entry)
	topic := mqtt.Topics{}.EntryState(snap.SerialNumber)

	if n.Kind == KindUnregistered {
		return s.pub.ClearRetained(topic)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	return s.pub.PublishRetained(topic, payload)
}

// Broadcaster is implemented by the WebSocket hub.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// HubSink broadcasts lifecycle changes to WebSocket clients.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a WebSocket sink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Name implements Sink.
func (*HubSink) Name() string { return "websocket" }

// Deliver implements Sink.
func (s *HubSink) Deliver(_ context.Context, n Notification) error {
	s.hub.Broadcast(string(n.Kind), NewSnapshot(n.Entry))
	return nil
}

// ReadingWriter is implemented by *influxdb.Client.
type ReadingWriter interface {
	WriteReading(r influxdb.Reading)
}

// InfluxSink exports a reading per registration or update.
// Unregistration writes nothing.
type InfluxSink struct {
	w ReadingWriter
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(w ReadingWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (*InfluxSink) Name() string { return "influxdb" }

// Deliver implements Sink.
func (s *InfluxSink) Deliver(_ context.Context, n Notification) error {
	if n.Kind == KindUnregistered {
		return nil
	}
	s.w.WriteReading(influxdb.Reading{
		DeviceID: n.Entry.ID,
		Type:     n.Entry.Type,
		Fields:   readingFields(n.Entry),
		Time:     n.At,
	})
	return nil
}
