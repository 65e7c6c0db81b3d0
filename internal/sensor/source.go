package sensor

import (
	"context"

	"elderguard/internal/models"
)

// ADC 满量程（12 位）
const (
	ADCMin = 0
	ADCMax = 4095
)

// AnalogSampleSource 心电模拟前端，每次调用返回一个 12 位采样
type AnalogSampleSource interface {
	ReadSample() int
}

// LeadContact 两路导联脱落数字输入
type LeadContact interface {
	LeadOff() (positive, negative bool)
}

// InertialSample 六轴惯性采样
type InertialSample struct {
	AX, AY, AZ float64 // 加速度 m/s²
	GX, GY, GZ float64 // 角速度 deg/s
}

// InertialSampleSource 惯性传感器
type InertialSampleSource interface {
	ReadInertial() (InertialSample, error)
}

// Initializer 需要显式初始化的传感器（初始化失败视为校准失败）
type Initializer interface {
	Init(ctx context.Context) error
}

// LocationProvider 定位读数（尽力而为，调用方通过 ctx 限时）
type LocationProvider interface {
	ReadLocation(ctx context.Context) (models.Location, error)
}

// StaticLeads 固定导联状态
type StaticLeads struct {
	PositiveOff bool
	NegativeOff bool
}

func (l StaticLeads) LeadOff() (bool, bool) {
	return l.PositiveOff, l.NegativeOff
}
