package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elderguard/internal/config"
	"elderguard/internal/fall"
	"elderguard/internal/models"
	"elderguard/internal/store"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// connectionState 可查询连接状态的发布端（common/mqtt.Client 实现）
type connectionState interface {
	IsConnected() bool
}

// RealtimePublisher 将心电与跌倒数据发布到 MQTT 实时主题
type RealtimePublisher struct {
	config    *config.Config
	store     *store.Store
	publisher Publisher
	logger    *zap.Logger
}

// NewRealtimePublisher 创建实时发布器
func NewRealtimePublisher(cfg *config.Config, st *store.Store, publisher Publisher, logger *zap.Logger) *RealtimePublisher {
	return &RealtimePublisher{
		config:    cfg,
		store:     st,
		publisher: publisher,
		logger:    logger,
	}
}

// OfflineStatus MQTT 遗嘱载荷
func OfflineStatus(deviceID string) ([]byte, error) {
	return json.Marshal(models.DeviceStatus{Status: "offline", DeviceID: deviceID})
}

// Start 发布上线状态后按 Publish.Interval 发布实时数据，退出时发布离线状态
func (p *RealtimePublisher) Start(ctx context.Context) error {
	p.logger.Info("Realtime publisher started",
		zap.String("realtime_topic", p.config.Publish.RealtimeTopic),
		zap.String("status_topic", p.config.Publish.StatusTopic),
	)

	if err := p.PublishStatus(time.Now()); err != nil {
		p.logger.Warn("Failed to publish online status", zap.Error(err))
	}

	ticker := time.NewTicker(p.config.Publish.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.publishOffline()
			p.logger.Info("Realtime publisher stopped")
			return nil
		case now := <-ticker.C:
			p.PublishOnce(now)
		}
	}
}

// PublishOnce 发布一个周期内的新数据；失败只记录日志，不重新排队
// 断线期间不消费信道，重连后发布最新值
func (p *RealtimePublisher) PublishOnce(now time.Time) {
	if cs, ok := p.publisher.(connectionState); ok && !cs.IsConnected() {
		p.logger.Debug("MQTT disconnected, realtime publish deferred")
		return
	}

	if reading, fresh, err := p.store.Cardiac().Consume(); err != nil {
		p.logger.Debug("Skipped cardiac read", zap.Error(err))
	} else if fresh {
		if err := p.publishECG(reading, now); err != nil {
			p.logger.Warn("Failed to publish cardiac reading", zap.Error(err))
		}
	}

	if event, fresh, err := p.store.Fall().Consume(); err != nil {
		p.logger.Debug("Skipped fall read", zap.Error(err))
	} else if fresh && event.Detected {
		if err := p.publishFall(event); err != nil {
			p.logger.Warn("Failed to publish fall event", zap.Error(err))
		}
	}
}

func (p *RealtimePublisher) publishECG(reading models.CardiacReading, now time.Time) error {
	valid := 0
	if reading.SignalValid {
		valid = 1
	}
	ts := reading.TimestampMs
	if ts == 0 {
		ts = now.UnixMilli()
	}

	msg := models.ECGMessage{
		Type:        "ecg",
		DeviceID:    p.config.Device.ID,
		HeartRate:   reading.HeartRateBpm,
		ValidSignal: valid,
		RawSample:   reading.RawSample,
		CreatedAt:   time.UnixMilli(ts).UTC().Format(time.RFC3339),
		Timestamp:   ts,
	}
	return p.publishJSON(p.config.Publish.RealtimeTopic, false, msg)
}

func (p *RealtimePublisher) publishFall(event models.FallEvent) error {
	msg := models.FallMessage{
		Type:           "fall",
		DeviceID:       p.config.Device.ID,
		FallDetected:   1,
		ImpactStrength: event.PeakAcceleration,
		CreatedAt:      time.UnixMilli(event.TimestampMs).UTC().Format(time.RFC3339),
		Details: models.FallDetails{
			Direction:   fall.Direction(event.Orientation.Pitch),
			Severity:    event.Severity,
			Orientation: event.Orientation,
		},
	}

	if loc, err := p.store.Location().ReadLatest(); err == nil && loc.Valid {
		msg.Details.Location = &models.GeoPosition{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}
	}

	if err := p.publishJSON(p.config.Publish.RealtimeTopic, false, msg); err != nil {
		return err
	}
	p.logger.Info("Published fall event",
		zap.String("device_id", p.config.Device.ID),
		zap.Int("severity", event.Severity),
		zap.String("direction", msg.Details.Direction),
	)
	return nil
}

// PublishStatus 发布 retained 上线状态及各传感器状态
func (p *RealtimePublisher) PublishStatus(now time.Time) error {
	sensors := &models.SensorStatus{}
	if reading, err := p.store.Cardiac().ReadLatest(); err == nil {
		sensors.ECG = reading.SignalValid
	}
	orientation, oErr := p.store.Orientation().ReadLatest()
	fault, fErr := p.store.Fault().ReadLatest()
	if oErr == nil && fErr == nil {
		sensors.FallDetection = orientation.Calibrated && !fault.Active
	}
	if loc, err := p.store.Location().ReadLatest(); err == nil {
		sensors.GPS = loc.Valid
	}

	status := models.DeviceStatus{
		Status:    "online",
		DeviceID:  p.config.Device.ID,
		CreatedAt: now.UTC().Format(time.RFC3339),
		Sensors:   sensors,
	}
	return p.publishJSON(p.config.Publish.StatusTopic, true, status)
}

func (p *RealtimePublisher) publishOffline() {
	payload, err := OfflineStatus(p.config.Device.ID)
	if err != nil {
		return
	}
	if err := p.publisher.Publish(p.config.Publish.StatusTopic, p.config.MQTT.QoS, true, payload); err != nil {
		p.logger.Warn("Failed to publish offline status", zap.Error(err))
	}
}

func (p *RealtimePublisher) publishJSON(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.publisher.Publish(topic, p.config.MQTT.QoS, retained, payload)
}
