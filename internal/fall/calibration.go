package fall

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"elderguard/internal/models"
	"elderguard/internal/sensor"

	"go.uber.org/zap"
)

var (
	// ErrCalibrationFailed 校准失败（传感器初始化/读取失败或设备未静止）
	ErrCalibrationFailed = errors.New("fall detector calibration failed")
	// ErrAlreadyCalibrated 基线每次启动只写一次
	ErrAlreadyCalibrated = errors.New("fall detector already calibrated")
	// ErrNotCalibrated 未校准不得进入检测
	ErrNotCalibrated = errors.New("fall detector not calibrated")
)

// 静止校准时加速度模长允许范围（m/s²），约 0.5g-1.5g
const (
	minRestMagnitude = 4.9
	maxRestMagnitude = 14.7
)

// Calibrate 静止采样取平均姿态作为基线
func (d *Detector) Calibrate(ctx context.Context) error {
	if d.calibrated {
		return ErrAlreadyCalibrated
	}

	// 1. 传感器初始化
	if init, ok := d.source.(sensor.Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return fmt.Errorf("%w: sensor init: %v", ErrCalibrationFailed, err)
		}
	}

	n := d.cfg.CalibrationSamples
	if n < 1 {
		n = 1
	}

	// 2. 采样并累加姿态
	var sum models.Orientation
	var magSum float64
	for i := 0; i < n; i++ {
		s, err := d.source.ReadInertial()
		if err != nil {
			return fmt.Errorf("%w: sample %d: %v", ErrCalibrationFailed, i, err)
		}
		mag := magnitude(s)
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			return fmt.Errorf("%w: sample %d is not finite", ErrCalibrationFailed, i)
		}

		o := orientationOf(s)
		sum.Pitch += o.Pitch
		sum.Roll += o.Roll
		sum.Yaw += o.Yaw
		magSum += mag

		if i < n-1 && d.cfg.CalibrationInterval > 0 {
			if err := sleep(ctx, d.cfg.CalibrationInterval); err != nil {
				return fmt.Errorf("%w: %v", ErrCalibrationFailed, err)
			}
		}
	}

	// 3. 设备必须静止（模长接近 1g）
	meanMag := magSum / float64(n)
	if meanMag < minRestMagnitude || meanMag > maxRestMagnitude {
		return fmt.Errorf("%w: mean magnitude %.2f m/s² outside resting range", ErrCalibrationFailed, meanMag)
	}

	d.baseline = models.Orientation{
		Pitch: sum.Pitch / float64(n),
		Roll:  sum.Roll / float64(n),
		Yaw:   sum.Yaw / float64(n),
	}
	d.orientation = d.baseline
	d.calibrated = true

	d.logger.Info("Fall detector calibrated",
		zap.Int("samples", n),
		zap.Float64("baseline_pitch", d.baseline.Pitch),
		zap.Float64("baseline_roll", d.baseline.Roll),
		zap.Float64("baseline_yaw", d.baseline.Yaw),
	)
	return nil
}

// Baseline 返回校准基线
func (d *Detector) Baseline() (models.Orientation, bool) {
	return d.baseline, d.calibrated
}

func sleep(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
