package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sensorbridge/internal/infrastructure/config"
)

// testConfig returns a configuration for a local broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "sensorbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping when none is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available, skipping")
	}
	conn.Close()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Unit tests (no broker)
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got  string
		want string
	}{
		{topics.EntryState("d1"), "sensorbridge/entry/d1/state"},
		{topics.SystemStatus(), "sensorbridge/system/status"},
		{topics.CommandRefresh(), "sensorbridge/command/refresh"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "sensorbridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain connection")
	}

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	opts = buildClientOptions(cfg)
	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("TLS server = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "sensorbridge-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("LWT should be enabled and retained")
	}
	if opts.WillTopic != "sensorbridge/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var msg statusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("WillPayload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "unexpected_disconnect" || msg.ClientID != "sensorbridge-test" {
		t.Errorf("WillPayload = %+v", msg)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("online", "c1", ""), &msg); err != nil {
		t.Fatalf("statusPayload() is not JSON: %v", err)
	}
	if msg.Status != "online" || msg.ClientID != "c1" || msg.Reason != "" {
		t.Errorf("payload = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", msg.Timestamp, err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "t", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "t", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := c.ClearRetained("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ClearRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.HasSubscription("t") {
		t.Error("failed subscription should not be tracked")
	}
	if err := c.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestDispatch(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	var got []byte
	c.dispatch(func(_ string, p []byte) error { got = p; return nil }, "t", []byte("ok"))

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors = %v, warns = %v, want one of each", logger.errors, logger.warns)
	}
	if string(got) != "ok" {
		t.Errorf("payload = %q, want ok", got)
	}
}

func TestHandleDisconnect(t *testing.T) {
	c := newClient(testConfig())
	c.connected = true

	var got error
	c.SetOnDisconnect(func(err error) { got = err })
	c.handleDisconnect(errors.New("network down"))

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection loss")
	}
	if got == nil || !strings.Contains(got.Error(), "network down") {
		t.Errorf("callback error = %v", got)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Broker tests (skipped without a local broker)
// =============================================================================

func TestBroker_RetainedStateRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "sensorbridge-test-roundtrip")

	topic := Topics{}.EntryState("roundtrip-test")
	if err := client.PublishRetained(topic, []byte(`{"currentTemperature":21.5}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	received := make(chan []byte, 1)
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("subscription not tracked")
	}

	select {
	case payload := <-received:
		if string(payload) != `{"currentTemperature":21.5}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retained message not delivered")
	}

	if err := client.ClearRetained(topic); err != nil {
		t.Errorf("ClearRetained() error = %v", err)
	}
	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestBroker_HealthCheck(t *testing.T) {
	client := connectOrSkip(t, "sensorbridge-test-health")

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
