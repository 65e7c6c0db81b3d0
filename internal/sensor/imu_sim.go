package sensor

import (
	"context"
	"math/rand"
)

const gravity = 9.81

// IMUSimulator 静止佩戴的惯性传感器，可按固定间隔插入一次跌倒过程
type IMUSimulator struct {
	rng       *rand.Rand
	noise     float64
	fallEvery int // 采样数，0 表示不模拟跌倒
	n         int
	script    []InertialSample
}

// NewIMUSimulator fallEvery 为两次模拟跌倒之间的采样数
func NewIMUSimulator(seed int64, noise float64, fallEvery int) *IMUSimulator {
	return &IMUSimulator{
		rng:       rand.New(rand.NewSource(seed)),
		noise:     noise,
		fallEvery: fallEvery,
	}
}

// Init 模拟器无需初始化
func (s *IMUSimulator) Init(ctx context.Context) error {
	return ctx.Err()
}

// ReadInertial 返回下一个采样
func (s *IMUSimulator) ReadInertial() (InertialSample, error) {
	s.n++
	if s.fallEvery > 0 && s.n%s.fallEvery == 0 && len(s.script) == 0 {
		s.script = FallScript(2 * 50)
	}
	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		return next, nil
	}

	return InertialSample{
		AX: s.jitter(0),
		AY: s.jitter(0),
		AZ: s.jitter(gravity),
		GX: s.jitter(0),
		GY: s.jitter(0),
		GZ: s.jitter(0),
	}, nil
}

func (s *IMUSimulator) jitter(v float64) float64 {
	return v + (s.rng.Float64()*2-1)*s.noise
}

// FallScript 一次向前跌倒：100ms 失重、两次冲击，然后平躺 lying 个采样（20ms 间隔）
func FallScript(lying int) []InertialSample {
	script := make([]InertialSample, 0, 7+lying)
	for i := 0; i < 5; i++ {
		script = append(script, InertialSample{AX: 1.0, AZ: 1.0})
	}
	script = append(script,
		InertialSample{AX: 30.0, AZ: 2.0, GY: 250},
		InertialSample{AX: 30.0, AZ: 2.0, GY: 180},
	)
	for i := 0; i < lying; i++ {
		script = append(script, InertialSample{AX: gravity, AZ: 0.5})
	}
	return script
}
