package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// DeviceConfigRepository 设备监测配置仓库
type DeviceConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceConfigRepository 创建设备监测配置仓库
func NewDeviceConfigRepository(db *sql.DB, logger *zap.Logger) *DeviceConfigRepository {
	return &DeviceConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetMonitorConfig 读取设备的 monitor_config（JSONB），无记录时返回 nil, nil
func (r *DeviceConfigRepository) GetMonitorConfig(ctx context.Context, deviceID string) (json.RawMessage, error) {
	query := `
		SELECT monitor_config
		FROM device_monitor_config
		WHERE device_id = $1
	`

	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Debug("No monitor config for device",
				zap.String("device_id", deviceID),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query monitor config: %w", err)
	}

	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	if !json.Valid([]byte(raw.String)) {
		return nil, fmt.Errorf("invalid monitor config for device %s", deviceID)
	}

	return json.RawMessage(raw.String), nil
}
