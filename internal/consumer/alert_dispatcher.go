package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elderguard/common/redis"
	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/store"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// alertWaitTimeout 等待告警的单次超时，到期后重新检查 ctx
const alertWaitTimeout = 500 * time.Millisecond

// AlertDispatcher 告警分发：HTTP 推送 + Redis Streams，任一通道可关闭
type AlertDispatcher struct {
	config      *config.Config
	store       *store.Store
	httpClient  *resty.Client // 为 nil 时不推送 HTTP
	redisClient *redis.Client // 为 nil 时不写 stream
	logger      *zap.Logger
}

// NewAlertDispatcher 创建告警分发器
func NewAlertDispatcher(
	cfg *config.Config,
	st *store.Store,
	redisClient *redis.Client,
	logger *zap.Logger,
) *AlertDispatcher {
	var httpClient *resty.Client
	if cfg.Alert.BaseURL != "" {
		httpClient = resty.New().
			SetBaseURL(cfg.Alert.BaseURL).
			SetTimeout(cfg.Alert.Timeout).
			SetRetryCount(cfg.Alert.RetryCount).
			SetRetryWaitTime(cfg.Alert.RetryWait).
			SetRetryMaxWaitTime(4*cfg.Alert.RetryWait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			}).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	return &AlertDispatcher{
		config:      cfg,
		store:       st,
		httpClient:  httpClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 等待告警信道更新并分发
func (d *AlertDispatcher) Start(ctx context.Context) error {
	d.logger.Info("Alert dispatcher started",
		zap.Bool("http_enabled", d.httpClient != nil),
		zap.Bool("stream_enabled", d.redisClient != nil),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Alert dispatcher stopped")
			return nil
		default:
		}

		if !d.store.Alert().WaitForUpdate(alertWaitTimeout) {
			continue
		}
		if _, err := d.DispatchPending(ctx); err != nil {
			d.logger.Error("Failed to dispatch fall alert", zap.Error(err))
		}
	}
}

// DispatchPending 认领待处理的跌倒告警并分发；没有待处理告警时返回 false
func (d *AlertDispatcher) DispatchPending(ctx context.Context) (bool, error) {
	record, ok, err := d.store.ClaimAlert()
	if err != nil {
		return false, fmt.Errorf("failed to claim alert: %w", err)
	}
	if !ok {
		return false, nil
	}

	payload := models.AlertPayload{
		AlertID:     record.AlertID,
		PatientID:   d.config.Device.PatientID,
		DeviceID:    d.config.Device.ID,
		AlertType:   models.AlertTypeFallDetected,
		Message:     record.Message,
		Severity:    record.Severity,
		HasLocation: record.HasLocationHint,
		CreatedAt:   time.UnixMilli(record.TimestampMs).UTC().Format(time.RFC3339),
	}

	d.logger.Info("Dispatching fall alert",
		zap.String("alert_id", payload.AlertID),
		zap.Int("severity", payload.Severity),
		zap.Bool("has_location", payload.HasLocation),
	)
	return true, d.Dispatch(ctx, payload)
}

// Dispatch 发送到所有已启用的通道，一个通道失败不影响另一个
func (d *AlertDispatcher) Dispatch(ctx context.Context, payload models.AlertPayload) error {
	var errs []error

	// 1. HTTP
	if d.httpClient != nil {
		if err := d.post(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}

	// 2. Redis Streams
	if d.redisClient != nil {
		id, err := redis.PublishJSONToStream(ctx, d.redisClient, d.config.Alert.StreamKey, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish alert to stream: %w", err))
		} else {
			d.logger.Debug("Published alert to stream",
				zap.String("stream", d.config.Alert.StreamKey),
				zap.String("message_id", id),
			)
		}
	}

	return errors.Join(errs...)
}

func (d *AlertDispatcher) post(ctx context.Context, payload models.AlertPayload) error {
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/alerts")
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert endpoint returned status %d", resp.StatusCode())
	}

	d.logger.Info("Alert delivered",
		zap.String("alert_id", payload.AlertID),
		zap.String("alert_type", payload.AlertType),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
