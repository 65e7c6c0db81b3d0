package consumer

import (
	"context"
	"fmt"
	"time"

	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertSink 告警发送接口（AlertDispatcher 实现）
type AlertSink interface {
	Dispatch(ctx context.Context, payload models.AlertPayload) error
}

// HeartRateWatcher 心率过高告警，按告警类型冷却
type HeartRateWatcher struct {
	config    *config.Config
	store     *store.Store
	sink      AlertSink
	logger    *zap.Logger
	lastAlert time.Time
}

// NewHeartRateWatcher 创建心率监视器
func NewHeartRateWatcher(cfg *config.Config, st *store.Store, sink AlertSink, logger *zap.Logger) *HeartRateWatcher {
	return &HeartRateWatcher{
		config: cfg,
		store:  st,
		sink:   sink,
		logger: logger,
	}
}

// Start 按 Publish.Interval 检查最新心率
func (w *HeartRateWatcher) Start(ctx context.Context) error {
	w.logger.Info("Heart rate watcher started",
		zap.Int("high_heart_rate_bpm", w.config.Alert.HighHeartRateBpm),
		zap.Duration("cooldown", w.config.Alert.HeartRateAlertCooldown),
	)

	ticker := time.NewTicker(w.config.Publish.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Heart rate watcher stopped")
			return nil
		case now := <-ticker.C:
			reading, err := w.store.Cardiac().ReadLatest()
			if err != nil {
				continue
			}
			if _, err := w.Evaluate(ctx, reading, now); err != nil {
				w.logger.Warn("Failed to send heart rate alert", zap.Error(err))
			}
		}
	}
}

// Evaluate 检查一次读数，发出告警时返回 true
func (w *HeartRateWatcher) Evaluate(ctx context.Context, reading models.CardiacReading, now time.Time) (bool, error) {
	// 1. 只看有效信号上的已知心率
	if !reading.SignalValid || reading.HeartRateBpm <= w.config.Alert.HighHeartRateBpm {
		return false, nil
	}

	// 2. 冷却期内不重复告警
	if !w.lastAlert.IsZero() && now.Sub(w.lastAlert) < w.config.Alert.HeartRateAlertCooldown {
		return false, nil
	}
	w.lastAlert = now

	payload := models.AlertPayload{
		AlertID:   uuid.New().String(),
		PatientID: w.config.Device.PatientID,
		DeviceID:  w.config.Device.ID,
		AlertType: models.AlertTypeHighHeartRate,
		Message:   fmt.Sprintf("High heart rate detected: %d BPM", reading.HeartRateBpm),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}

	w.logger.Info("High heart rate detected",
		zap.String("device_id", w.config.Device.ID),
		zap.Int("heart_rate", reading.HeartRateBpm),
	)
	return true, w.sink.Dispatch(ctx, payload)
}
