package models

// Orientation 姿态角（度）
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// OrientationState 滤波后的姿态与校准基线
type OrientationState struct {
	Current    Orientation `json:"current"`
	Baseline   Orientation `json:"baseline"`
	Calibrated bool        `json:"calibrated"`
}

// FallEvent 跌倒事件快照
type FallEvent struct {
	Detected         bool        `json:"detected"`
	PeakAcceleration float64     `json:"peak_acceleration"` // m/s²
	Orientation      Orientation `json:"orientation"`
	Severity         int         `json:"severity"` // 1-10，仅在 Detected 时有意义
	TimestampMs      int64       `json:"timestamp_ms"`
}

// FallAlertRecord 跌倒告警记录，由告警分发器消费一次
type FallAlertRecord struct {
	AlertID         string `json:"alert_id"`
	Message         string `json:"message"`
	HasLocationHint bool   `json:"has_location_hint"`
	Pending         bool   `json:"pending"`
	Severity        int    `json:"severity"`
	TimestampMs     int64  `json:"timestamp_ms"`
}
