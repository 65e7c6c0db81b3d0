package models

// CardiacReading 心电发布快照（每个发布周期整体覆盖）
type CardiacReading struct {
	RawSample    int   `json:"raw_sample"`     // 12 位 ADC 原始值
	HeartRateBpm int   `json:"heart_rate_bpm"` // 0 表示未知
	SignalValid  bool  `json:"signal_valid"`   // 导联、量程、方差检查结果
	TimestampMs  int64 `json:"timestamp_ms"`
}
