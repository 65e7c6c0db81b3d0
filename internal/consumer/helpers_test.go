package consumer

import (
	"context"
	"sync"
	"time"

	"elderguard/common/mqtt"
	"elderguard/internal/config"
	"elderguard/internal/models"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Device.ID = "elderguard-001"
	cfg.Device.PatientID = "42"
	cfg.MQTT.QoS = 1
	cfg.Publish.Interval = 10 * time.Millisecond
	cfg.Publish.RealtimeTopic = "elderguard/patient/42/realtime"
	cfg.Publish.StatusTopic = "elderguard/patient/42/status"
	cfg.Publish.LocationTopic = "elderguard/patient/42/location"
	cfg.Alert.Timeout = time.Second
	cfg.Alert.RetryCount = 2
	cfg.Alert.RetryWait = 5 * time.Millisecond
	cfg.Alert.StreamKey = "elderguard:alerts"
	cfg.Alert.HighHeartRateBpm = 120
	cfg.Alert.HeartRateAlertCooldown = time.Minute
	cfg.Cache.KeyPrefix = "elderguard:device:"
	cfg.Cache.KeySuffix = ":snapshot"
	cfg.Cache.TTL = 10 * time.Second
	cfg.Cache.Interval = 10 * time.Millisecond
	cfg.Audio.MaxVolume = 30
	return cfg
}

type message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// fakePublisher 记录发布的消息
type fakePublisher struct {
	mu           sync.Mutex
	messages     []message
	err          error
	disconnected bool
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disconnected
}

func (p *fakePublisher) setConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = !connected
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

func (p *fakePublisher) sent() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.messages...)
}

type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	s.topic = topic
	s.qos = qos
	s.handler = handler
	return nil
}

// fakeKV 内存 KVStore（忽略 TTL）
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (kv *fakeKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	kv.ttls[key] = ttl
	return nil
}

func (kv *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

type fakeSink struct {
	mu       sync.Mutex
	payloads []models.AlertPayload
}

func (s *fakeSink) Dispatch(_ context.Context, payload models.AlertPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

type fakePlayer struct {
	mu     sync.Mutex
	played []models.AudioCommand
}

func (p *fakePlayer) Play(_ context.Context, cmd models.AudioCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, cmd)
	return nil
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}
