package fall

import (
	"math"

	"elderguard/internal/models"
	"elderguard/internal/sensor"
)

const radToDeg = 180.0 / math.Pi

// magnitude 加速度模长
func magnitude(s sensor.InertialSample) float64 {
	return math.Sqrt(s.AX*s.AX + s.AY*s.AY + s.AZ*s.AZ)
}

// orientationOf 由三轴加速度计算姿态角（度）
func orientationOf(s sensor.InertialSample) models.Orientation {
	return models.Orientation{
		Pitch: math.Atan2(s.AX, math.Sqrt(s.AY*s.AY+s.AZ*s.AZ)) * radToDeg,
		Roll:  math.Atan2(s.AY, math.Sqrt(s.AX*s.AX+s.AZ*s.AZ)) * radToDeg,
		Yaw:   math.Atan2(math.Sqrt(s.AX*s.AX+s.AY*s.AY), s.AZ) * radToDeg,
	}
}

// lowPass 姿态一阶低通，alpha 为历史权重
func lowPass(prev, raw models.Orientation, alpha float64) models.Orientation {
	return models.Orientation{
		Pitch: alpha*prev.Pitch + (1-alpha)*raw.Pitch,
		Roll:  alpha*prev.Roll + (1-alpha)*raw.Roll,
		Yaw:   alpha*prev.Yaw + (1-alpha)*raw.Yaw,
	}
}

// Severity 将峰值加速度从 [floor, ceiling] 线性映射到 [1, 10]，先钳位再缩放
func Severity(peak, floor, ceiling float64) int {
	if math.IsNaN(peak) || ceiling <= floor || peak <= floor {
		return 1
	}
	if peak >= ceiling {
		return 10
	}
	sev := int(math.Round(1 + (peak-floor)/(ceiling-floor)*9))
	if sev < 1 {
		return 1
	}
	if sev > 10 {
		return 10
	}
	return sev
}

// Direction 按俯仰角判断跌倒方向
func Direction(pitch float64) string {
	switch {
	case pitch > 45:
		return "forward"
	case pitch < -45:
		return "backward"
	default:
		return "sideways"
	}
}
