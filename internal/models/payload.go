package models

// 对外发布的 JSON 载荷（MQTT 实时主题、告警接口、Redis Streams）

// ECGMessage 心电实时消息
type ECGMessage struct {
	Type        string `json:"type"` // "ecg"
	DeviceID    string `json:"device_id"`
	HeartRate   int    `json:"heart_rate"`
	ValidSignal int    `json:"valid_signal"` // 1/0
	RawSample   int    `json:"raw_sample"`
	CreatedAt   string `json:"created_at"` // RFC3339
	Timestamp   int64  `json:"timestamp"`  // ms
}

// FallMessage 跌倒实时消息
type FallMessage struct {
	Type           string      `json:"type"` // "fall"
	DeviceID       string      `json:"device_id"`
	FallDetected   int         `json:"fall_detected"`
	ImpactStrength float64     `json:"impact_strength"`
	CreatedAt      string      `json:"created_at"`
	Details        FallDetails `json:"details"`
}

// FallDetails 跌倒详情
type FallDetails struct {
	Direction   string       `json:"direction"`
	Severity    int          `json:"severity"`
	Orientation Orientation  `json:"orientation"`
	Location    *GeoPosition `json:"location,omitempty"`
}

// GeoPosition 经纬度
type GeoPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeviceStatus 设备在线状态（retained）
type DeviceStatus struct {
	Status    string        `json:"status"` // "online" / "offline"
	DeviceID  string        `json:"device_id"`
	CreatedAt string        `json:"created_at,omitempty"`
	Sensors   *SensorStatus `json:"sensors,omitempty"`
}

// SensorStatus 各传感器状态
type SensorStatus struct {
	ECG           bool `json:"ecg"`
	FallDetection bool `json:"fall_detection"`
	GPS           bool `json:"gps"`
}

// 告警类型
const (
	AlertTypeFallDetected  = "fall_detected"
	AlertTypeHighHeartRate = "high_heart_rate"
)

// AlertPayload 告警推送内容
type AlertPayload struct {
	AlertID     string `json:"alert_id"`
	PatientID   string `json:"patient_id"`
	DeviceID    string `json:"device_id"`
	AlertType   string `json:"alert_type"`
	Message     string `json:"message"`
	Severity    int    `json:"severity"`
	HasLocation bool   `json:"has_location"`
	CreatedAt   string `json:"created_at"`
}
