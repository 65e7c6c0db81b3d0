package models

// 音频编号（与播放模块的曲目编号一致）
const (
	SoundEmergency    = 1
	SoundFallDetected = 2
	SoundMedication   = 6
	SoundWelcome      = 7
)

// AudioCommand 音频播放指令
type AudioCommand struct {
	SoundID     int   `json:"sound_id"`
	RepeatCount int   `json:"repeat_count"`
	Volume      int   `json:"volume"`
	TimestampMs int64 `json:"timestamp_ms"`
}

// Location 位置读数
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Valid       bool    `json:"valid"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// DeviceFault 设备级故障（目前只有校准失败）
type DeviceFault struct {
	Active      bool   `json:"active"`
	Component   string `json:"component"`
	Message     string `json:"message"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// DeviceSnapshot 设备当前状态（缓存用，不含历史）
type DeviceSnapshot struct {
	DeviceID    string           `json:"device_id"`
	Cardiac     CardiacReading   `json:"cardiac"`
	Fall        FallEvent        `json:"fall"`
	Orientation OrientationState `json:"orientation"`
	Location    Location         `json:"location"`
	Fault       DeviceFault      `json:"fault"`
	UpdatedAt   int64            `json:"updated_at"`
}
