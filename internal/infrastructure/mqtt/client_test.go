package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rrdcached-go/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker tests expect Mosquitto at 127.0.0.1:1883 and skip without it.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "rrdc-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

var testTopics = Topics{Prefix: "rrdc-test"}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	client, err := Connect(cfg, testTopics)
	if errors.Is(err, ErrConnectionFailed) {
		t.Skipf("no MQTT broker available: %v", err)
	}
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "update", got: Topics{Prefix: "site/rrd"}.Update("temp.rrd"), expected: "site/rrd/update/temp.rrd"},
		{name: "update nested id", got: Topics{Prefix: "rrdc"}.Update("net/eth0.rrd"), expected: "rrdc/update/net/eth0.rrd"},
		{name: "error", got: Topics{Prefix: "rrdc"}.Error("temp.rrd"), expected: "rrdc/error/temp.rrd"},
		{name: "status", got: Topics{Prefix: "rrdc"}.Status(), expected: "rrdc/status"},
		{name: "all updates", got: Topics{Prefix: "rrdc"}.AllUpdates(), expected: "rrdc/update/#"},
		{name: "default prefix", got: Topics{}.Status(), expected: "rrdc/status"},
		{name: "trailing slash", got: Topics{Prefix: "a/"}.Update("x"), expected: "a/update/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestParseUpdate(t *testing.T) {
	topics := Topics{Prefix: "site/rrd"}

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{topic: "site/rrd/update/temp.rrd", wantID: "temp.rrd", wantOK: true},
		{topic: "site/rrd/update/net/eth0.rrd", wantID: "net/eth0.rrd", wantOK: true},
		{topic: "site/rrd/update/", wantOK: false},
		{topic: "site/rrd/error/temp.rrd", wantOK: false},
		{topic: "other/update/temp.rrd", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := topics.ParseUpdate(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("ParseUpdate(%q) = %q, %v, want %q, %v", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}

	// Round trip through the builder.
	if id, ok := topics.ParseUpdate(topics.Update("a b.rrd")); !ok || id != "a b.rrd" {
		t.Errorf("ParseUpdate(Update()) = %q, %v", id, ok)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "rrdc-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q, %q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "p"}, "rrdc-test")

	if !opts.WillEnabled || opts.WillTopic != "p/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q retained=%v qos=%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload.Status != "offline" || payload.ClientID != "rrdc-test" || payload.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", payload)
	}
}

func TestBuildStatusPayloadEscapes(t *testing.T) {
	var payload statusPayload
	if err := json.Unmarshal(buildStatusPayload("online", `id"with"quotes`, ""), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload.ClientID != `id"with"quotes` {
		t.Errorf("ClientID = %q", payload.ClientID)
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestDisconnectedClient(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Publish("t", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := client.Subscribe("t", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := client.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestInputValidation(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "publish empty topic", err: client.Publish("", nil, 1, false), want: ErrInvalidTopic},
		{name: "publish bad qos", err: client.Publish("t", nil, 3, false), want: ErrInvalidQoS},
		{name: "publish oversize", err: client.Publish("t", make([]byte, maxPayloadSize+1), 1, false), want: ErrPublishFailed},
		{name: "subscribe empty topic", err: client.Subscribe("", 1, handler), want: ErrInvalidTopic},
		{name: "subscribe bad qos", err: client.Subscribe("t", 3, handler), want: ErrInvalidQoS},
		{name: "subscribe nil handler", err: client.Subscribe("t", 1, nil), want: ErrSubscribeFailed},
		{name: "unsubscribe empty topic", err: client.Unsubscribe(""), want: ErrInvalidTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { return errors.New("rejected") }, "t", nil)
	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns = %v, errors = %v", logger.warns, logger.errors)
	}

	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
	// No logger: must not panic.
	client.dispatch(func(string, []byte) error { panic("quiet") }, "t", nil)
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, testTopics)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("t", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := connectOrSkip(t, testConfig())
	handler := func(string, []byte) error { return nil }

	topics := []string{testTopics.Update("a.rrd"), testTopics.Update("b.rrd"), testTopics.AllUpdates()}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != 3 {
		t.Errorf("SubscriptionCount() = %d, want 3", client.SubscriptionCount())
	}
	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) || !client.HasSubscription(topics[1]) {
		t.Error("HasSubscription() does not reflect Unsubscribe")
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pubCfg := testConfig()
	pubCfg.Broker.ClientID = "rrdc-test-pub"
	pub := connectOrSkip(t, pubCfg)

	subCfg := testConfig()
	subCfg.Broker.ClientID = "rrdc-test-sub"
	sub := connectOrSkip(t, subCfg)

	type message struct{ topic, payload string }
	received := make(chan message, 4)
	err := sub.Subscribe(testTopics.AllUpdates(), 1, func(topic string, payload []byte) error {
		received <- message{topic, string(payload)}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	topic := testTopics.Update("net/eth0.rrd")
	if err := pub.PublishString(topic, "N:1:2", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.topic != topic || msg.payload != "N:1:2" {
			t.Errorf("received %+v", msg)
		}
		if id, ok := testTopics.ParseUpdate(msg.topic); !ok || !strings.HasSuffix(id, "eth0.rrd") {
			t.Errorf("ParseUpdate(%q) = %q, %v", msg.topic, id, ok)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
