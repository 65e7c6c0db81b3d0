package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// MonitorConfig 设备级阈值覆盖（来自 device_monitor_config.monitor_config JSONB）
// 只有出现的字段才会覆盖默认值
type MonitorConfig struct {
	Cardiac *struct {
		StalenessWindowMs *int64   `json:"staleness_window_ms,omitempty"`
		NoBeatTimeoutMs   *int64   `json:"no_beat_timeout_ms,omitempty"`
		LeadOffGraceMs    *int64   `json:"lead_off_grace_ms,omitempty"`
		HRSmoothing       *float64 `json:"hr_smoothing,omitempty"`
		MinThreshold      *float64 `json:"min_threshold,omitempty"`
	} `json:"cardiac,omitempty"`

	Fall *struct {
		FreefallThreshold          *float64 `json:"freefall_threshold,omitempty"`
		ImpactThreshold            *float64 `json:"impact_threshold,omitempty"`
		OrientationChangeThreshold *float64 `json:"orientation_change_threshold,omitempty"`
		MinFreefallDurationMs      *int64   `json:"min_freefall_duration_ms,omitempty"`
		MaxFreefallWindowMs        *int64   `json:"max_freefall_window_ms,omitempty"`
		RequiredConsecutiveImpacts *int     `json:"required_consecutive_impacts,omitempty"`
		FallResetTimeMs            *int64   `json:"fall_reset_time_ms,omitempty"`
		RequireOrientationChange   *bool    `json:"require_orientation_change,omitempty"`
	} `json:"fall,omitempty"`

	Alert *struct {
		HighHeartRateBpm *int `json:"high_heart_rate_bpm,omitempty"`
	} `json:"alert,omitempty"`
}

// ApplyMonitorConfig 将设备监控配置合并到当前配置
func (c *Config) ApplyMonitorConfig(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var mc MonitorConfig
	if err := json.Unmarshal(raw, &mc); err != nil {
		return fmt.Errorf("failed to unmarshal monitor config: %w", err)
	}

	if cc := mc.Cardiac; cc != nil {
		setMillis(&c.Cardiac.StalenessWindow, cc.StalenessWindowMs)
		setMillis(&c.Cardiac.NoBeatTimeout, cc.NoBeatTimeoutMs)
		setMillis(&c.Cardiac.LeadOffGrace, cc.LeadOffGraceMs)
		if cc.HRSmoothing != nil {
			c.Cardiac.HRSmoothing = *cc.HRSmoothing
		}
		if cc.MinThreshold != nil {
			c.Cardiac.MinThreshold = *cc.MinThreshold
		}
	}

	if fc := mc.Fall; fc != nil {
		if fc.FreefallThreshold != nil {
			c.Fall.FreefallThreshold = *fc.FreefallThreshold
		}
		if fc.ImpactThreshold != nil {
			c.Fall.ImpactThreshold = *fc.ImpactThreshold
		}
		if fc.OrientationChangeThreshold != nil {
			c.Fall.OrientationChangeThreshold = *fc.OrientationChangeThreshold
		}
		setMillis(&c.Fall.MinFreefallDuration, fc.MinFreefallDurationMs)
		setMillis(&c.Fall.MaxFreefallWindow, fc.MaxFreefallWindowMs)
		setMillis(&c.Fall.FallResetTime, fc.FallResetTimeMs)
		if fc.RequiredConsecutiveImpacts != nil {
			c.Fall.RequiredConsecutiveImpacts = *fc.RequiredConsecutiveImpacts
		}
		if fc.RequireOrientationChange != nil {
			c.Fall.RequireOrientationChange = *fc.RequireOrientationChange
		}
	}

	if ac := mc.Alert; ac != nil && ac.HighHeartRateBpm != nil {
		c.Alert.HighHeartRateBpm = *ac.HighHeartRateBpm
	}

	return c.Validate()
}

// Validate 检查整体配置，周期类参数必须为正
func (c *Config) Validate() error {
	if err := c.Cardiac.Validate(); err != nil {
		return err
	}
	if err := c.Fall.Validate(); err != nil {
		return err
	}
	if c.Publish.Interval <= 0 {
		return fmt.Errorf("publish interval must be positive, got %v", c.Publish.Interval)
	}
	if c.Cache.Interval <= 0 {
		return fmt.Errorf("cache interval must be positive, got %v", c.Cache.Interval)
	}
	if c.Alert.RetryCount < 0 {
		return fmt.Errorf("alert retry count must be >= 0, got %d", c.Alert.RetryCount)
	}
	return nil
}

// Validate 检查心电管线参数
func (cc CardiacConfig) Validate() error {
	if cc.SamplePeriod <= 0 || cc.PublishInterval <= 0 {
		return fmt.Errorf("invalid cardiac periods: sample=%v publish=%v", cc.SamplePeriod, cc.PublishInterval)
	}
	if cc.BufferSize <= 0 || cc.MovingAverageWindow < 1 || cc.MovingAverageWindow > cc.BufferSize || cc.VarianceWindow > cc.BufferSize {
		return fmt.Errorf("invalid cardiac windows: buffer=%d moving_average=%d variance=%d",
			cc.BufferSize, cc.MovingAverageWindow, cc.VarianceWindow)
	}
	for name, w := range map[string]float64{
		"baseline_weight":  cc.BaselineWeight,
		"amplitude_weight": cc.AmplitudeWeight,
		"hr_smoothing":     cc.HRSmoothing,
	} {
		if w < 0 || w >= 1 {
			return fmt.Errorf("%s out of range [0,1): %v", name, w)
		}
	}
	if cc.MinRR <= 0 || cc.MinRR >= cc.MaxRR {
		return fmt.Errorf("invalid rr window: min=%v max=%v", cc.MinRR, cc.MaxRR)
	}
	if cc.MinQRSWidth >= cc.MaxQRSWidth {
		return fmt.Errorf("invalid qrs width: min=%v max=%v", cc.MinQRSWidth, cc.MaxQRSWidth)
	}
	if cc.SampleMin >= cc.SampleMax || cc.MinStdDev >= cc.MaxStdDev {
		return fmt.Errorf("invalid signal range: samples=[%d,%d] stddev=[%v,%v]",
			cc.SampleMin, cc.SampleMax, cc.MinStdDev, cc.MaxStdDev)
	}
	return nil
}

// Validate 检查跌倒检测阈值之间的一致性
func (f FallConfig) Validate() error {
	if f.SamplePeriod <= 0 {
		return fmt.Errorf("fall sample period must be positive, got %v", f.SamplePeriod)
	}
	if f.FreefallThreshold <= 0 || f.ImpactThreshold <= f.FreefallThreshold {
		return fmt.Errorf("invalid fall thresholds: freefall=%v impact=%v", f.FreefallThreshold, f.ImpactThreshold)
	}
	if f.ImpactThreshold >= f.SeverityCeiling {
		return fmt.Errorf("impact threshold %v must be below severity ceiling %v", f.ImpactThreshold, f.SeverityCeiling)
	}
	if f.MaxFreefallWindow <= f.MinFreefallDuration {
		return fmt.Errorf("max freefall window %v must exceed min freefall duration %v", f.MaxFreefallWindow, f.MinFreefallDuration)
	}
	if f.RequiredConsecutiveImpacts < 1 {
		return fmt.Errorf("required consecutive impacts must be >= 1, got %d", f.RequiredConsecutiveImpacts)
	}
	return nil
}

func setMillis(dst *time.Duration, ms *int64) {
	if ms != nil && *ms >= 0 {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}
