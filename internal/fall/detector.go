package fall

import (
	"context"
	"fmt"
	"math"
	"time"

	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/sensor"
	"elderguard/internal/store"

	"go.uber.org/zap"
)

// State 跌倒检测状态
type State int

const (
	Monitoring State = iota
	PotentialFall
	ImpactDetected
	FallConfirmed
)

func (s State) String() string {
	switch s {
	case Monitoring:
		return "MONITORING"
	case PotentialFall:
		return "POTENTIAL_FALL"
	case ImpactDetected:
		return "IMPACT_DETECTED"
	case FallConfirmed:
		return "FALL_CONFIRMED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// 跌倒提示音
const (
	fallSoundRepeat = 3
	fallSoundVolume = 30
)

// Detector 跌倒检测：校准 → 每个采样更新姿态并驱动四状态机
// 只有 Run 所在的 goroutine 访问内部状态
type Detector struct {
	cfg      config.FallConfig
	source   sensor.InertialSampleSource
	location sensor.LocationProvider
	store    *store.Store
	logger   *zap.Logger

	calibrated  bool
	baseline    models.Orientation
	orientation models.Orientation

	state      State
	stateSince time.Time

	// 当前窗口统计（进入 POTENTIAL_FALL 时重置）
	peak     float64
	min      float64
	accSum   float64
	accCount int
	impacts  int

	// 锁超时未发出的数据，下个周期重试
	pendingEvent *models.FallEvent
	pendingAlert *models.FallAlertRecord
	pendingAudio *models.AudioCommand

	lastOrientationPublish time.Time
}

// NewDetector 创建跌倒检测器，location 可为 nil
func NewDetector(
	cfg config.FallConfig,
	source sensor.InertialSampleSource,
	location sensor.LocationProvider,
	st *store.Store,
	logger *zap.Logger,
) *Detector {
	return &Detector{
		cfg:      cfg,
		source:   source,
		location: location,
		store:    st,
		logger:   logger,
		state:    Monitoring,
	}
}

// State 当前状态
func (d *Detector) State() State {
	return d.state
}

// Run 校准后按采样周期运行；校准失败上报设备故障并返回错误
func (d *Detector) Run(ctx context.Context) error {
	if err := d.Calibrate(ctx); err != nil {
		d.logger.Error("Fall detector calibration failed, monitoring disabled", zap.Error(err))
		d.raiseFault(err, time.Now())
		return err
	}
	d.publishOrientation(time.Now())

	ticker := time.NewTicker(d.cfg.SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Fall detector stopped")
			return nil
		case now := <-ticker.C:
			if err := d.Step(ctx, now); err != nil {
				d.logger.Warn("Fall detector step failed", zap.Error(err))
			}
		}
	}
}

// Step 处理一个惯性采样
func (d *Detector) Step(ctx context.Context, now time.Time) error {
	if !d.calibrated {
		return ErrNotCalibrated
	}

	s, err := d.source.ReadInertial()
	if err != nil {
		return fmt.Errorf("failed to read inertial sample: %w", err)
	}

	// 1. 模长与姿态滤波
	mag := magnitude(s)
	d.orientation = lowPass(d.orientation, orientationOf(s), d.cfg.OrientationAlpha)

	// 2. 状态机
	switch d.state {
	case Monitoring:
		if mag < d.cfg.FreefallThreshold {
			d.enterPotentialFall(now, mag)
		}

	case PotentialFall:
		d.accumulate(mag)
		elapsed := now.Sub(d.stateSince)
		if elapsed >= d.cfg.MinFreefallDuration {
			if mag > d.cfg.ImpactThreshold {
				d.impacts++
				if d.impacts >= d.cfg.RequiredConsecutiveImpacts {
					d.transition(ImpactDetected, now)
					break
				}
			} else {
				d.impacts = 0
			}
		}
		if elapsed > d.cfg.MaxFreefallWindow {
			d.logger.Debug("Freefall window expired without impact",
				zap.Float64("peak", d.peak),
			)
			d.transition(Monitoring, now)
		}

	case ImpactDetected:
		d.evaluate(ctx, now)

	case FallConfirmed:
		if now.Sub(d.stateSince) >= d.cfg.FallResetTime {
			d.resetAfterFall(now)
		}
	}

	// 3. 发布
	d.flush()
	if now.Sub(d.lastOrientationPublish) >= d.cfg.OrientationPublishInterval {
		d.publishOrientation(now)
	}
	return nil
}

func (d *Detector) transition(next State, now time.Time) {
	d.state = next
	d.stateSince = now
}

func (d *Detector) enterPotentialFall(now time.Time, mag float64) {
	d.transition(PotentialFall, now)
	d.peak = mag
	d.min = mag
	d.accSum = mag
	d.accCount = 1
	d.impacts = 0
}

func (d *Detector) accumulate(mag float64) {
	d.accSum += mag
	d.accCount++
	d.peak = math.Max(d.peak, mag)
	d.min = math.Min(d.min, mag)
}

// evaluate 姿态变化（可选）与加速度模式（必需）双重门控
func (d *Detector) evaluate(ctx context.Context, now time.Time) {
	pitchDelta := math.Abs(d.orientation.Pitch - d.baseline.Pitch)
	rollDelta := math.Abs(d.orientation.Roll - d.baseline.Roll)
	orientationOK := pitchDelta > d.cfg.OrientationChangeThreshold || rollDelta > d.cfg.OrientationChangeThreshold

	avg := 0.0
	if d.accCount > 0 {
		avg = d.accSum / float64(d.accCount)
	}
	spread := d.peak - d.min
	patternOK := avg >= d.cfg.MinAverageAcceleration && spread >= d.cfg.MinAccelerationSpread

	if !patternOK || (d.cfg.RequireOrientationChange && !orientationOK) {
		d.logger.Debug("Impact rejected",
			zap.Bool("orientation_ok", orientationOK),
			zap.Bool("pattern_ok", patternOK),
			zap.Float64("pitch_delta", pitchDelta),
			zap.Float64("roll_delta", rollDelta),
			zap.Float64("avg_acceleration", avg),
			zap.Float64("spread", spread),
		)
		d.transition(Monitoring, now)
		return
	}

	d.confirm(ctx, now)
}

// confirm 生成跌倒事件、告警记录与提示音
func (d *Detector) confirm(ctx context.Context, now time.Time) {
	d.transition(FallConfirmed, now)

	severity := Severity(d.peak, d.cfg.ImpactThreshold, d.cfg.SeverityCeiling)
	ts := now.UnixMilli()

	event := models.FallEvent{
		Detected:         true,
		PeakAcceleration: d.peak,
		Orientation:      d.orientation,
		Severity:         severity,
		TimestampMs:      ts,
	}
	alert := d.buildAlert(ctx, severity, ts)
	audio := models.AudioCommand{
		SoundID:     models.SoundFallDetected,
		RepeatCount: fallSoundRepeat,
		Volume:      fallSoundVolume,
		TimestampMs: ts,
	}

	d.pendingEvent = &event
	d.pendingAlert = &alert
	d.pendingAudio = &audio

	d.logger.Info("Fall confirmed",
		zap.Int("severity", severity),
		zap.Float64("peak_acceleration", d.peak),
		zap.Float64("pitch", d.orientation.Pitch),
		zap.Float64("roll", d.orientation.Roll),
		zap.String("direction", Direction(d.orientation.Pitch)),
		zap.Bool("has_location", alert.HasLocationHint),
	)
}

func (d *Detector) resetAfterFall(now time.Time) {
	d.transition(Monitoring, now)
	d.peak = 0
	d.min = 0
	d.accSum = 0
	d.accCount = 0
	d.impacts = 0

	cleared := models.FallEvent{
		Detected:    false,
		Orientation: d.orientation,
		TimestampMs: now.UnixMilli(),
	}
	d.pendingEvent = &cleared
	d.logger.Info("Fall state reset")
}

// flush 发布待发数据；锁超时的保留到下个周期
func (d *Detector) flush() {
	if d.pendingEvent != nil {
		if err := d.store.Fall().Publish(*d.pendingEvent); err != nil {
			d.logger.Debug("Deferred fall event publish", zap.Error(err))
		} else {
			d.pendingEvent = nil
		}
	}
	if d.pendingAlert != nil {
		if err := d.store.Alert().Publish(*d.pendingAlert); err != nil {
			d.logger.Debug("Deferred fall alert publish", zap.Error(err))
		} else {
			d.pendingAlert = nil
		}
	}
	if d.pendingAudio != nil {
		if err := d.store.Audio().Publish(*d.pendingAudio); err != nil {
			d.logger.Debug("Deferred audio command publish", zap.Error(err))
		} else {
			d.pendingAudio = nil
		}
	}
}

func (d *Detector) publishOrientation(now time.Time) {
	state := models.OrientationState{
		Current:    d.orientation,
		Baseline:   d.baseline,
		Calibrated: d.calibrated,
	}
	if err := d.store.Orientation().Publish(state); err != nil {
		d.logger.Debug("Skipped orientation publish", zap.Error(err))
		return
	}
	d.lastOrientationPublish = now
}

// raiseFault 上报持久的设备故障
func (d *Detector) raiseFault(cause error, now time.Time) {
	fault := models.DeviceFault{
		Active:      true,
		Component:   "fall_detector",
		Message:     cause.Error(),
		TimestampMs: now.UnixMilli(),
	}
	// 故障必须可见，锁超时时重试几次
	for i := 0; i < 5; i++ {
		if err := d.store.Fault().Publish(fault); err == nil {
			return
		}
	}
	d.logger.Error("Failed to publish device fault")
}
