package cardiac

import (
	"testing"
	"time"

	"elderguard/internal/channel"
	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/sensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const period = 20 * time.Millisecond

var t0 = time.Unix(1700000000, 0)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * period)
}

// scriptedSource 按采样序号生成 ADC 值
type scriptedSource struct {
	fn func(i int) int
	i  int
}

func (s *scriptedSource) ReadSample() int {
	v := s.fn(s.i)
	s.i++
	return v
}

// switchLeads 可切换的导联状态
type switchLeads struct {
	off bool
}

func (l *switchLeads) LeadOff() (bool, bool) {
	return l.off, false
}

// beatAt 每 40 个采样（800ms）一个两点宽的 R 波，从第 20 个采样开始
func beatAt(i int) bool {
	return i >= 20 && (i-20)%40 < 2
}

func regularTrace(i int) int {
	if beatAt(i) {
		return 2048 + 1500
	}
	return 2048
}

type harness struct {
	p     *Pipeline
	out   *channel.SharedChannel[models.CardiacReading]
	src   *scriptedSource
	leads *switchLeads
	next  int
}

func newHarness(t *testing.T, trace func(i int) int) *harness {
	t.Helper()
	src := &scriptedSource{fn: trace}
	leads := &switchLeads{}
	out := channel.New[models.CardiacReading](10 * time.Millisecond)
	p := NewPipeline(config.DefaultCardiacConfig(), src, leads, out, zap.NewNop())
	return &harness{p: p, out: out, src: src, leads: leads}
}

// runUntil 执行采样直到序号 end（不含）
func (h *harness) runUntil(end int) {
	for ; h.next < end; h.next++ {
		h.p.Step(at(h.next))
	}
}

func (h *harness) latest(t *testing.T) models.CardiacReading {
	t.Helper()
	r, err := h.out.ReadLatest()
	require.NoError(t, err)
	return r
}

func assertRingAll(t *testing.T, p *Pipeline, want time.Duration) {
	t.Helper()
	for i, v := range p.detector.ring.slots {
		assert.Equal(t, want, v, "ring slot %d", i)
	}
}

func TestPipeline_ConstantRRConvergesTo75(t *testing.T) {
	h := newHarness(t, regularTrace)
	h.runUntil(1000) // 20s

	r := h.latest(t)
	assert.True(t, r.SignalValid)
	assert.InDelta(t, 75, r.HeartRateBpm, 1)
	assert.Equal(t, 2048, r.RawSample)
	assertRingAll(t, h.p, 800*time.Millisecond)
}

func TestPipeline_PublishesAtInterval(t *testing.T) {
	h := newHarness(t, regularTrace)
	h.runUntil(1)
	assert.Equal(t, uint64(1), h.out.Stats().Published)

	h.runUntil(50) // 未到 1s
	assert.Equal(t, uint64(1), h.out.Stats().Published)

	h.runUntil(51)
	assert.Equal(t, uint64(2), h.out.Stats().Published)
	assert.Equal(t, at(50).UnixMilli(), h.latest(t).TimestampMs)
}

func TestPipeline_ShortRRIgnored(t *testing.T) {
	// 第 620 个采样的心跳之后 260ms 插入一个额外 R 波
	h := newHarness(t, func(i int) int {
		if i == 633 || i == 634 {
			return 2048 + 1500
		}
		return regularTrace(i)
	})
	h.runUntil(620)
	hr := h.p.detector.heartRate
	require.InDelta(t, 75, hr, 0.01)

	h.runUntil(760)
	assertRingAll(t, h.p, 800*time.Millisecond)
	assert.InDelta(t, hr, h.p.detector.heartRate, 0.01)
	assert.Equal(t, 75, h.latest(t).HeartRateBpm)
}

func TestPipeline_WideComplexIgnored(t *testing.T) {
	// 200ms 宽的偏移，超过 QRS 宽度上限
	h := newHarness(t, func(i int) int {
		if i >= 635 && i < 645 {
			return 2048 + 1500
		}
		return regularTrace(i)
	})
	h.runUntil(620)
	hr := h.p.detector.heartRate

	h.runUntil(800)
	assertRingAll(t, h.p, 800*time.Millisecond)
	assert.InDelta(t, hr, h.p.detector.heartRate, 0.01)
}

func TestPipeline_LeadOff(t *testing.T) {
	h := newHarness(t, regularTrace)
	h.runUntil(600)
	require.True(t, h.latest(t).SignalValid)

	// 一个采样周期内变为无效，并立即发布
	h.leads.off = true
	h.runUntil(601)
	r := h.latest(t)
	assert.False(t, r.SignalValid)
	assert.Equal(t, at(600).UnixMilli(), r.TimestampMs)
	assert.Equal(t, 75, r.HeartRateBpm, "last good value within staleness window")

	h.runUntil(660)
	r = h.latest(t)
	assert.False(t, r.SignalValid)
	assert.Equal(t, 75, r.HeartRateBpm)

	// 6s 后心率归零
	h.runUntil(900)
	r = h.latest(t)
	assert.False(t, r.SignalValid)
	assert.Equal(t, 0, r.HeartRateBpm)

	// 导联恢复后重新检测
	h.leads.off = false
	h.runUntil(1400)
	r = h.latest(t)
	assert.True(t, r.SignalValid)
	assert.InDelta(t, 75, r.HeartRateBpm, 1)
}

func TestPipeline_LeadOffClearsMidWindowWithoutNewBeat(t *testing.T) {
	// 600 之后信号变平
	h := newHarness(t, func(i int) int {
		if i >= 600 {
			return 2048
		}
		return regularTrace(i)
	})
	h.runUntil(600)

	h.leads.off = true
	h.runUntil(650)
	h.leads.off = false
	h.runUntil(700)

	// 仍在陈旧窗口内：上报旧值但标记无效
	assert.Equal(t, 75, h.p.detector.reported(at(700)))
	assert.False(t, h.latest(t).SignalValid)

	h.runUntil(900)
	r := h.latest(t)
	assert.Equal(t, 0, r.HeartRateBpm)
	assert.False(t, r.SignalValid)
}

func TestPipeline_NoBeatTimeoutResetsHeartRate(t *testing.T) {
	// 600 之后只剩小幅波动：方差有效但没有 QRS
	h := newHarness(t, func(i int) int {
		if i >= 600 {
			if i%2 == 0 {
				return 2058
			}
			return 2038
		}
		return regularTrace(i)
	})
	h.runUntil(600)
	require.Greater(t, h.p.detector.heartRate, 0.0)

	h.runUntil(1100) // 10s 无心跳
	assert.True(t, h.latest(t).SignalValid)
	assert.Equal(t, 0, h.latest(t).HeartRateBpm)
	assert.Equal(t, 0.0, h.p.detector.heartRate)
	_, ok := h.p.detector.ring.average()
	assert.False(t, ok)
}

func TestPipeline_ExcessiveVarianceInvalid(t *testing.T) {
	// 600-800 之间量程内剧烈抖动，之后恢复正常心电
	h := newHarness(t, func(i int) int {
		if i >= 600 && i < 800 {
			if i%2 == 0 {
				return 500
			}
			return 3500
		}
		return regularTrace(i)
	})
	h.runUntil(600)
	require.True(t, h.latest(t).SignalValid)
	hr := h.p.detector.heartRate

	h.runUntil(650)
	sd, ok := h.p.samples.stdDev(h.p.cfg.VarianceWindow)
	require.True(t, ok)
	assert.Greater(t, sd, h.p.cfg.MaxStdDev)
	assert.False(t, h.latest(t).SignalValid)

	// 抖动期间不产生心跳
	h.runUntil(800)
	assert.False(t, h.latest(t).SignalValid)
	assertRingAll(t, h.p, 800*time.Millisecond)
	assert.Equal(t, hr, h.p.detector.heartRate)

	// 恢复后重新有效
	h.runUntil(1000)
	assert.True(t, h.latest(t).SignalValid)
	assertRingAll(t, h.p, 800*time.Millisecond)
}

func TestPipeline_OutOfRangeSampleInvalid(t *testing.T) {
	h := newHarness(t, func(i int) int { return 4095 })
	h.runUntil(10)
	assert.False(t, h.latest(t).SignalValid)
}

func TestPipeline_SkipsPublishOnLockTimeout(t *testing.T) {
	src := &scriptedSource{fn: regularTrace}
	out := channel.New[models.CardiacReading](0)
	p := NewPipeline(config.DefaultCardiacConfig(), src, &switchLeads{}, out, zap.NewNop())

	// 另一读者长时间持有锁，发布被跳过
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = out.Acknowledge(func(*models.CardiacReading) bool {
			close(held)
			<-release
			return false
		})
	}()
	<-held
	p.Step(at(0))
	assert.Equal(t, uint64(1), out.Stats().Skipped)
	close(release)
	<-done

	// 下个周期重试成功
	p.Step(at(1))
	assert.Equal(t, uint64(1), out.Stats().Published)
}

func TestPipeline_SimulatedECG(t *testing.T) {
	sim := sensor.NewECGSimulator(50, 72, 0)
	out := channel.New[models.CardiacReading](10 * time.Millisecond)
	p := NewPipeline(config.DefaultCardiacConfig(), sim, sensor.StaticLeads{}, out, zap.NewNop())

	for i := 0; i < 1500; i++ {
		p.Step(at(i))
	}

	r, err := out.ReadLatest()
	require.NoError(t, err)
	assert.True(t, r.SignalValid)
	assert.GreaterOrEqual(t, r.HeartRateBpm, 62)
	assert.LessOrEqual(t, r.HeartRateBpm, 82)
}
