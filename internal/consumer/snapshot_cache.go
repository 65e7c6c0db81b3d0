package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/store"

	"go.uber.org/zap"
)

// SnapshotCache 定期把设备当前快照写入缓存（只保存当前状态，依赖 TTL 过期）
type SnapshotCache struct {
	config *config.Config
	store  *store.Store
	kv     KVStore
	logger *zap.Logger
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(cfg *config.Config, st *store.Store, kv KVStore, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		config: cfg,
		store:  st,
		kv:     kv,
		logger: logger,
	}
}

// Key 设备快照的缓存键
func (c *SnapshotCache) Key(deviceID string) string {
	return fmt.Sprintf("%s%s%s", c.config.Cache.KeyPrefix, deviceID, c.config.Cache.KeySuffix)
}

// Start 按 Cache.Interval 刷新快照
func (c *SnapshotCache) Start(ctx context.Context) error {
	c.logger.Info("Snapshot cache started",
		zap.String("key", c.Key(c.config.Device.ID)),
		zap.Duration("interval", c.config.Cache.Interval),
	)

	ticker := time.NewTicker(c.config.Cache.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Snapshot cache stopped")
			return nil
		case now := <-ticker.C:
			if err := c.Refresh(ctx, now); err != nil {
				c.logger.Warn("Failed to refresh snapshot cache", zap.Error(err))
			}
		}
	}
}

// Refresh 读取快照并写入缓存
func (c *SnapshotCache) Refresh(ctx context.Context, now time.Time) error {
	snap, err := c.store.Snapshot(c.config.Device.ID, now)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := c.Key(c.config.Device.ID)
	if err := c.kv.Set(ctx, key, data, c.config.Cache.TTL); err != nil {
		return err
	}

	c.logger.Debug("Updated snapshot cache",
		zap.String("key", key),
		zap.Int("heart_rate", snap.Cardiac.HeartRateBpm),
		zap.Bool("fall_detected", snap.Fall.Detected),
	)
	return nil
}

// Get 读取设备快照
func (c *SnapshotCache) Get(ctx context.Context, deviceID string) (*models.DeviceSnapshot, error) {
	val, err := c.kv.Get(ctx, c.Key(deviceID))
	if err != nil {
		return nil, err
	}

	var snap models.DeviceSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
