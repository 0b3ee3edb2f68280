package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rrdcached-go/internal/infrastructure/mqtt"
	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

// Bridge operation constants.
const (
	// defaultUpdateTimeout bounds one UPDATE round trip.
	defaultUpdateTimeout = 5 * time.Second

	// maxEchoedPayload caps how much of a rejected payload goes back out
	// on the error topic.
	maxEchoedPayload = 256
)

// ErrInvalidTopic is returned for messages outside <prefix>/update/.
var ErrInvalidTopic = errors.New("ingest: not an update topic")

// Bridge turns MQTT update messages into rrdcached UPDATE commands.
//
// Every message is one synchronous UPDATE on a shared client; paho runs
// handlers concurrently and the connection serializes them. After a fatal
// connection error the client is dropped and the next message dials again.
// Samples are never queued or retried.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt          MQTTClient
	topics        mqtt.Topics
	dial          DialFunc
	qos           byte
	publishErrors bool
	timeout       time.Duration

	client   Updater
	clientMu sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	received atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64
	dials    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the subset of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Updater is the subset of *rrdcached.Client the bridge needs.
type Updater interface {
	Update(ctx context.Context, id string, samples ...rrdcached.Sample) error
	Close() error
}

// DialFunc opens a fresh daemon connection.
type DialFunc func(ctx context.Context) (Updater, error)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Dial opens daemon connections. Required.
	Dial DialFunc

	// Topics roots the subscription and error topics.
	Topics mqtt.Topics

	// QoS is used for both the subscription and error publishes.
	QoS byte

	// PublishErrors publishes failures to <prefix>/error/<id>.
	PublishErrors bool

	// UpdateTimeout bounds each UPDATE. Default: 5 seconds.
	UpdateTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Dial == nil {
		return nil, errors.New("dial function is required")
	}
	timeout := opts.UpdateTimeout
	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:          opts.MQTT,
		topics:        opts.Topics,
		dial:          opts.Dial,
		qos:           opts.QoS,
		publishErrors: opts.PublishErrors,
		timeout:       timeout,
		ctx:           ctx,
		ctxCancel:     cancel,
		logger:        opts.Logger,
	}, nil
}

// DialRRDCached adapts rrdcached.Dial to a DialFunc.
func DialRRDCached(cfg rrdcached.DialConfig) DialFunc {
	return func(ctx context.Context) (Updater, error) {
		client, err := rrdcached.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Start dials the daemon once, so a bad address fails fast, and subscribes
// to every update topic.
func (b *Bridge) Start(ctx context.Context) error {
	if _, err := b.updater(ctx); err != nil {
		return fmt.Errorf("connect to rrdcached: %w", err)
	}

	topic := b.topics.AllUpdates()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to updates: %w", err)
	}
	b.logInfo("subscribed to updates", "topic", topic)
	return nil
}

// Stop aborts in-flight updates and closes the daemon connection.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.clientMu.Lock()
		if b.client != nil {
			_ = b.client.Close()
			b.client = nil
		}
		b.clientMu.Unlock()

		b.logInfo("bridge stopped")
	})
}

// handleMessage is the MQTT handler. The returned error is logged by the
// MQTT client; rejections are also published when enabled.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	id, ok := b.topics.ParseUpdate(topic)
	if !ok {
		b.rejected.Add(1)
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	samples, err := ParsePayload(payload)
	if err != nil {
		b.reject(id, payload, err)
		return err
	}

	if err := b.apply(id, samples); err != nil {
		b.reject(id, payload, err)
		return err
	}

	b.applied.Add(1)
	b.logDebug("update applied", "file", id, "samples", len(samples))
	return nil
}

func (b *Bridge) apply(id string, samples []rrdcached.Sample) error {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	client, err := b.updater(ctx)
	if err != nil {
		return err
	}

	err = client.Update(ctx, id, samples...)
	if rrdcached.IsFatal(err) {
		b.drop(client)
	}
	return err
}

// updater returns the shared client, dialing when there is none.
func (b *Bridge) updater(ctx context.Context) (Updater, error) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: bridge stopped", rrdcached.ErrConnectionClosed)
	}

	client, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.dials.Add(1)
	b.client = client
	return client, nil
}

// drop discards client if it is still the shared one.
func (b *Bridge) drop(client Updater) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()

	if b.client == client {
		_ = b.client.Close()
		b.client = nil
		b.logInfo("dropped rrdcached connection after fatal error")
	}
}

// ErrorMessage is published to <prefix>/error/<id>.
type ErrorMessage struct {
	File    string `json:"file"`
	Kind    string `json:"kind"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error"`
	Payload string `json:"payload"`
	Time    string `json:"timestamp"`
}

func (b *Bridge) reject(id string, payload []byte, err error) {
	b.rejected.Add(1)
	b.logError("update rejected", "file", id, "error", err)

	if !b.publishErrors {
		return
	}

	msg := ErrorMessage{
		File:    id,
		Kind:    rrdcached.KindOf(err).String(),
		Error:   err.Error(),
		Payload: truncate(string(payload), maxEchoedPayload),
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	var respErr *rrdcached.ResponseError
	if errors.As(err, &respErr) {
		msg.Code = respErr.Code
	}

	data, mErr := json.Marshal(msg)
	if mErr != nil {
		b.logError("failed to encode error message", "error", mErr)
		return
	}
	if pErr := b.mqtt.Publish(b.topics.Error(id), data, b.qos, false); pErr != nil {
		b.logError("failed to publish error message", "file", id, "error", pErr)
	}
}

// ParsePayload decodes whitespace-separated "<ts|N>:<v>[:<v>...]" samples.
func ParsePayload(payload []byte) ([]rrdcached.Sample, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty payload", rrdcached.ErrBadRequest)
	}
	samples := make([]rrdcached.Sample, 0, len(fields))
	for _, f := range fields {
		s, err := rrdcached.ParseSample(f)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Metrics is a snapshot of bridge counters.
type Metrics struct {
	Received  uint64
	Applied   uint64
	Rejected  uint64
	Dials     uint64
	Connected bool
}

// Metrics returns current counters.
func (b *Bridge) Metrics() Metrics {
	b.clientMu.Lock()
	connected := b.client != nil
	b.clientMu.Unlock()

	return Metrics{
		Received:  b.received.Load(),
		Applied:   b.applied.Load(),
		Rejected:  b.rejected.Load(),
		Dials:     b.dials.Load(),
		Connected: connected,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
