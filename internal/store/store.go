package store

import (
	"context"
	"fmt"
	"time"

	"elderguard/internal/channel"
	"elderguard/internal/models"
)

// DefaultLockTimeout 信道加锁的默认等待上限
const DefaultLockTimeout = 20 * time.Millisecond

// Store 设备快照存储：每类数据一个单槽信道，每个信道只有一个写入方
//
//	cardiac     心电管线
//	fall        跌倒检测
//	orientation 跌倒检测（姿态与校准基线）
//	alert       跌倒检测写入，告警分发器确认
//	audio       跌倒检测
//	location    外部定位模块
//	fault       设备级故障
type Store struct {
	cardiac     *channel.SharedChannel[models.CardiacReading]
	fall        *channel.SharedChannel[models.FallEvent]
	orientation *channel.SharedChannel[models.OrientationState]
	alert       *channel.SharedChannel[models.FallAlertRecord]
	audio       *channel.SharedChannel[models.AudioCommand]
	location    *channel.SharedChannel[models.Location]
	fault       *channel.SharedChannel[models.DeviceFault]
}

// New 创建快照存储，所有信道使用同一加锁超时
func New(lockTimeout time.Duration) *Store {
	return NewWithTimeouts(lockTimeout, lockTimeout, lockTimeout)
}

// NewWithTimeouts 按写入方分别设置加锁超时：cardiac 用于心电信道，
// fall 用于跌倒检测写入的信道，其余信道使用 other
func NewWithTimeouts(cardiac, fall, other time.Duration) *Store {
	return &Store{
		cardiac:     channel.New[models.CardiacReading](cardiac),
		fall:        channel.New[models.FallEvent](fall),
		orientation: channel.New[models.OrientationState](fall),
		alert:       channel.New[models.FallAlertRecord](fall),
		audio:       channel.New[models.AudioCommand](fall),
		location:    channel.New[models.Location](other),
		fault:       channel.New[models.DeviceFault](other),
	}
}

func (s *Store) Cardiac() *channel.SharedChannel[models.CardiacReading]       { return s.cardiac }
func (s *Store) Fall() *channel.SharedChannel[models.FallEvent]               { return s.fall }
func (s *Store) Orientation() *channel.SharedChannel[models.OrientationState] { return s.orientation }
func (s *Store) Alert() *channel.SharedChannel[models.FallAlertRecord]        { return s.alert }
func (s *Store) Audio() *channel.SharedChannel[models.AudioCommand]           { return s.audio }
func (s *Store) Location() *channel.SharedChannel[models.Location]            { return s.location }
func (s *Store) Fault() *channel.SharedChannel[models.DeviceFault]            { return s.fault }

// ClaimAlert 取出待处理的跌倒告警并清除 pending，同一条告警只会被取出一次
func (s *Store) ClaimAlert() (models.FallAlertRecord, bool, error) {
	return s.alert.Acknowledge(func(r *models.FallAlertRecord) bool {
		if !r.Pending {
			return false
		}
		r.Pending = false
		return true
	})
}

// ReadLocation 有界读取最近一次定位（实现 sensor.LocationProvider）
func (s *Store) ReadLocation(ctx context.Context) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	loc, err := s.location.ReadLatest()
	if err != nil {
		return models.Location{}, fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Snapshot 汇总各信道当前值
func (s *Store) Snapshot(deviceID string, now time.Time) (models.DeviceSnapshot, error) {
	snap := models.DeviceSnapshot{
		DeviceID:  deviceID,
		UpdatedAt: now.UnixMilli(),
	}

	var err error
	if snap.Cardiac, err = s.cardiac.ReadLatest(); err != nil {
		return snap, fmt.Errorf("failed to read cardiac channel: %w", err)
	}
	if snap.Fall, err = s.fall.ReadLatest(); err != nil {
		return snap, fmt.Errorf("failed to read fall channel: %w", err)
	}
	if snap.Orientation, err = s.orientation.ReadLatest(); err != nil {
		return snap, fmt.Errorf("failed to read orientation channel: %w", err)
	}
	if snap.Location, err = s.location.ReadLatest(); err != nil {
		return snap, fmt.Errorf("failed to read location channel: %w", err)
	}
	if snap.Fault, err = s.fault.ReadLatest(); err != nil {
		return snap, fmt.Errorf("failed to read fault channel: %w", err)
	}

	return snap, nil
}
