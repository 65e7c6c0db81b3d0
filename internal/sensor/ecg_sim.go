package sensor

import "math"

// ECGSimulator 生成类心电波形（非临床），输出 12 位 ADC 值
// 基线漂移 + P/QRS/T 高斯波 + 确定性噪声
type ECGSimulator struct {
	fs    float64
	hrBPM float64
	noise float64
	gain  float64
	phase float64
	drift float64
}

// NewECGSimulator fs 为采样率（Hz），noise 取 0-0.1
func NewECGSimulator(fs, hrBPM, noise float64) *ECGSimulator {
	return &ECGSimulator{fs: fs, hrBPM: hrBPM, noise: noise, gain: 1200}
}

// SetHeartRate 修改模拟心率
func (s *ECGSimulator) SetHeartRate(hrBPM float64) {
	s.hrBPM = hrBPM
}

// ReadSample 返回下一个采样并推进相位
func (s *ECGSimulator) ReadSample() int {
	s.phase += s.hrBPM / 60.0 / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	s.drift += 1.0 / s.fs
	t := s.phase

	// 呼吸引起的慢漂移（约 0.25Hz）
	baseline := 0.05 * math.Sin(2*math.Pi*0.25*s.drift)

	// 50Hz 采样下 QRS 需要足够宽才能被采到
	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.015)
	r := 1.00 * gauss(t, 0.32, 0.02)
	sw := -0.25 * gauss(t, 0.35, 0.018)
	tw := 0.25 * gauss(t, 0.60, 0.06)

	n := s.noise * (2*fract(math.Sin(12345.678*s.drift)*9876.543) - 1)

	v := 2048 + s.gain*(baseline+p+q+r+sw+tw+n)
	if v < ADCMin {
		v = ADCMin
	}
	if v > ADCMax {
		v = ADCMax
	}
	return int(v)
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
