package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"elderguard/common/mqtt"
	"elderguard/internal/models"
	"elderguard/internal/store"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// locationMessage 定位模块上报的位置
type locationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Valid     *bool   `json:"valid,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // ms
}

// LocationListener 订阅定位主题并写入位置信道（位置信道的唯一写入方）
type LocationListener struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLocationListener 创建定位监听器
func NewLocationListener(st *store.Store, logger *zap.Logger) *LocationListener {
	return &LocationListener{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe 订阅定位主题
func (l *LocationListener) Subscribe(sub Subscriber, topic string, qos byte) error {
	if err := sub.Subscribe(topic, qos, l.HandleMessage); err != nil {
		return err
	}
	l.logger.Info("Subscribed to location topic", zap.String("topic", topic))
	return nil
}

// HandleMessage 解析一条定位消息
func (l *LocationListener) HandleMessage(topic string, payload []byte) error {
	var msg locationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal location: %w", err)
	}

	valid := msg.Latitude >= -90 && msg.Latitude <= 90 &&
		msg.Longitude >= -180 && msg.Longitude <= 180 &&
		!(msg.Latitude == 0 && msg.Longitude == 0)
	if msg.Valid != nil {
		valid = valid && *msg.Valid
	}

	ts := msg.Timestamp
	if ts == 0 {
		ts = l.now().UnixMilli()
	}

	loc := models.Location{
		Latitude:    msg.Latitude,
		Longitude:   msg.Longitude,
		Valid:       valid,
		TimestampMs: ts,
	}
	return l.Publish(loc)
}

// Publish 写入位置信道
func (l *LocationListener) Publish(loc models.Location) error {
	if err := l.store.Location().Publish(loc); err != nil {
		return fmt.Errorf("failed to publish location: %w", err)
	}
	l.logger.Debug("Location updated",
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
		zap.Bool("valid", loc.Valid),
	)
	return nil
}
