package cardiac

import (
	"math"
	"time"

	"elderguard/internal/config"
)

// RRRingSize RR 间期环形缓冲区容量
const RRRingSize = 8

// rrRing 最近 8 个有效 RR 间期，0 表示空槽
type rrRing struct {
	slots [RRRingSize]time.Duration
	next  int
}

func (r *rrRing) push(rr time.Duration) {
	r.slots[r.next] = rr
	r.next = (r.next + 1) % RRRingSize
}

func (r *rrRing) reset() {
	*r = rrRing{}
}

// average 非零槽位的平均值
func (r *rrRing) average() (time.Duration, bool) {
	var sum time.Duration
	n := 0
	for _, v := range r.slots {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / time.Duration(n), true
}

// beatDetector 自适应阈值 QRS 检测 + RR 平均 + 心率平滑
type beatDetector struct {
	cfg config.CardiacConfig

	amplitude float64 // 近期 R 波幅度估计（相对基线）

	inComplex     bool
	awaitingReset bool // 超宽退出后需先回落到半阈值以下
	complexStart  time.Time
	complexPeak   float64
	peakAt        time.Time

	ring      rrRing
	reference time.Time // 上一个确认心跳（RR 参考点）
	lastBeat  time.Time // 最近一次 RR 被接受的心跳
	heartRate float64   // 平滑后的心率，0 表示未知
}

func newBeatDetector(cfg config.CardiacConfig) *beatDetector {
	return &beatDetector{
		cfg:       cfg,
		amplitude: cfg.InitialAmplitude,
	}
}

// threshold 检测阈值（相对基线）：近期幅度的一半，不低于下限
func (d *beatDetector) threshold() float64 {
	return math.Max(d.amplitude/2, d.cfg.MinThreshold)
}

// process 处理一个偏离基线的滤波值，确认一次心跳时返回 true
func (d *beatDetector) process(now time.Time, deviation float64) bool {
	thr := d.threshold()

	if !d.inComplex {
		if d.awaitingReset {
			if deviation < thr/2 {
				d.awaitingReset = false
			}
			return false
		}
		if deviation > thr {
			d.inComplex = true
			d.complexStart = now
			d.complexPeak = deviation
			d.peakAt = now
		}
		return false
	}

	if deviation > d.complexPeak {
		d.complexPeak = deviation
		d.peakAt = now
	}

	width := now.Sub(d.complexStart)
	switch {
	case deviation < thr/2:
		d.inComplex = false
		return d.completeComplex(width)
	case width >= d.cfg.MaxComplexWidth:
		d.inComplex = false
		d.awaitingReset = true
		return d.completeComplex(width)
	}
	return false
}

// completeComplex 校验 QRS 宽度与 RR 间期，合法则更新 RR 环与心率
func (d *beatDetector) completeComplex(width time.Duration) bool {
	if width < d.cfg.MinQRSWidth || width > d.cfg.MaxQRSWidth {
		return false
	}

	beatAt := d.peakAt
	if d.reference.IsZero() {
		d.reference = beatAt
		return false
	}

	rr := beatAt.Sub(d.reference)
	if rr < d.cfg.MinRR {
		// 过近，多为 T 波或噪声，参考点不动
		return false
	}
	if rr > d.cfg.MaxRR {
		// 间隔过长（漏检或停顿），仅重新锚定参考点
		d.reference = beatAt
		return false
	}

	d.ring.push(rr)
	d.amplitude = d.cfg.AmplitudeWeight*d.amplitude + (1-d.cfg.AmplitudeWeight)*d.complexPeak
	d.reference = beatAt
	d.lastBeat = beatAt
	d.updateHeartRate()
	return true
}

func (d *beatDetector) updateHeartRate() {
	avg, ok := d.ring.average()
	if !ok {
		return
	}
	instant := 60000.0 / (float64(avg) / float64(time.Millisecond))
	if d.heartRate == 0 {
		d.heartRate = instant
		return
	}
	d.heartRate = d.cfg.HRSmoothing*d.heartRate + (1-d.cfg.HRSmoothing)*instant
}

// abortComplex 信号无效时放弃进行中的 QRS
func (d *beatDetector) abortComplex() {
	d.inComplex = false
}

// resetBeats 清空 RR 环与心率（导联脱落过久或长时间无心跳）
func (d *beatDetector) resetBeats() {
	d.ring.reset()
	d.heartRate = 0
	d.reference = time.Time{}
	d.inComplex = false
	d.awaitingReset = false
}

// reported 上报心率：最近一次确认心跳在陈旧窗口内时返回平滑心率，否则 0
func (d *beatDetector) reported(now time.Time) int {
	if d.lastBeat.IsZero() || now.Sub(d.lastBeat) > d.cfg.StalenessWindow {
		return 0
	}
	hr := int(math.Round(d.heartRate))
	if hr < 0 {
		return 0
	}
	if hr > 300 {
		return 300
	}
	return hr
}
