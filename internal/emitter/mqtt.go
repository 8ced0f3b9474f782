package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/config"
	"github.com/SoarinFerret/AttokWarden/internal/event"
)

// MQTTEmitter publishes student events to an MQTT broker.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	log    *zap.Logger
	Client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

func NewMQTTEmitter(cfg config.MQTTConfig, log *zap.Logger) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		log:       log,
		published: make(map[string]uint64),
	}
}

func (e *MQTTEmitter) Name() string { return "mqtt" }

// Connect establishes connection to the broker. The client reconnects on
// its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mqtt connection established",
			zap.String("broker", broker), zap.String("client_id", e.cfg.ClientID))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mqtt connection lost, will auto-reconnect",
			zap.String("broker", broker), zap.Error(err))
	}

	e.Client = mqtt.NewClient(opts)
	e.log.Info("connecting to mqtt broker", zap.String("broker", broker))

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Topic is where events of a kind are published: <topic>/<kind>.
func (e *MQTTEmitter) Topic(kind event.Kind) string {
	return e.cfg.Topic + "/" + strings.ToLower(string(kind))
}

// Forward publishes ev as JSON with QoS 1.
func (e *MQTTEmitter) Forward(ctx context.Context, ev event.Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := e.Topic(ev.Kind)
	token := e.Client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(2 * time.Second):
		e.countError()
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.log.Debug("event published", zap.String("topic", topic), zap.Int("size", len(payload)))
	return nil
}

func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		e.log.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
