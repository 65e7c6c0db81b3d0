package cardiac

import (
	"context"
	"time"

	"elderguard/internal/channel"
	"elderguard/internal/config"
	"elderguard/internal/models"
	"elderguard/internal/sensor"

	"go.uber.org/zap"
)

// Pipeline 心电管线：采样 → 导联检查 → 滑动平均/基线 → QRS 检测 → RR 平均 → 平滑心率 → 发布
// 只有 Run 所在的 goroutine 访问内部状态
type Pipeline struct {
	cfg    config.CardiacConfig
	source sensor.AnalogSampleSource
	leads  sensor.LeadContact
	out    *channel.SharedChannel[models.CardiacReading]
	logger *zap.Logger

	samples  *sampleRing
	detector *beatDetector

	baseline     float64
	baselineInit bool
	lastRaw      int
	signalValid  bool
	leadOffSince time.Time

	published          bool
	lastPublish        time.Time
	lastPublishedValid bool
}

// NewPipeline 创建心电管线
func NewPipeline(
	cfg config.CardiacConfig,
	source sensor.AnalogSampleSource,
	leads sensor.LeadContact,
	out *channel.SharedChannel[models.CardiacReading],
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		leads:    leads,
		out:      out,
		logger:   logger,
		samples:  newSampleRing(cfg.BufferSize),
		detector: newBeatDetector(cfg),
	}
}

// Run 按采样周期运行，直到 ctx 取消
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("Cardiac pipeline started",
		zap.Duration("sample_period", p.cfg.SamplePeriod),
		zap.Duration("publish_interval", p.cfg.PublishInterval),
	)

	ticker := time.NewTicker(p.cfg.SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Cardiac pipeline stopped")
			return nil
		case now := <-ticker.C:
			p.Step(now)
		}
	}
}

// Step 处理一个采样周期
func (p *Pipeline) Step(now time.Time) {
	// 1. 采样、入缓冲、导联检查
	raw := p.source.ReadSample()
	p.lastRaw = raw
	p.samples.push(raw)

	if p.leadOff(now) {
		p.signalValid = false
		p.detector.abortComplex()
		p.maybePublish(now)
		return
	}

	// 2. 滑动平均 + 慢速基线
	filtered := p.samples.mean(p.cfg.MovingAverageWindow)
	if !p.baselineInit {
		p.baseline = filtered
		p.baselineInit = true
	} else {
		p.baseline = p.cfg.BaselineWeight*p.baseline + (1-p.cfg.BaselineWeight)*filtered
	}

	// 量程/方差检查失败时只跟踪基线，不做检测
	p.signalValid = p.inRange(raw) && p.varianceOK()

	// 3-5. QRS 检测、RR 校验、心率更新
	if p.signalValid {
		if p.detector.process(now, filtered-p.baseline) {
			p.logger.Debug("Beat confirmed",
				zap.Float64("heart_rate", p.detector.heartRate),
			)
		}
	} else {
		p.detector.abortComplex()
	}

	// 6. 信号有效但长时间无心跳
	if p.signalValid && p.detector.heartRate > 0 && now.Sub(p.detector.lastBeat) > p.cfg.NoBeatTimeout {
		p.logger.Info("No beat within timeout, heart rate reset",
			zap.Duration("timeout", p.cfg.NoBeatTimeout),
		)
		p.detector.resetBeats()
	}

	p.maybePublish(now)
}

// leadOff 检查导联状态；脱落超过宽限期后清空心率
func (p *Pipeline) leadOff(now time.Time) bool {
	positive, negative := p.leads.LeadOff()
	if !positive && !negative {
		if !p.leadOffSince.IsZero() {
			p.logger.Info("Leads reattached", zap.Duration("off_for", now.Sub(p.leadOffSince)))
			p.leadOffSince = time.Time{}
		}
		return false
	}

	if p.leadOffSince.IsZero() {
		p.leadOffSince = now
		p.logger.Warn("Lead off detected",
			zap.Bool("positive_off", positive),
			zap.Bool("negative_off", negative),
		)
	} else if now.Sub(p.leadOffSince) >= p.cfg.LeadOffGrace && p.detector.heartRate > 0 {
		p.detector.resetBeats()
	}
	return true
}

func (p *Pipeline) inRange(raw int) bool {
	return raw >= p.cfg.SampleMin && raw <= p.cfg.SampleMax
}

// varianceOK 平坦（断线/饱和）或噪声过大都视为无效；采样不足窗口时不判定
func (p *Pipeline) varianceOK() bool {
	sd, ok := p.samples.stdDev(p.cfg.VarianceWindow)
	if !ok {
		return true
	}
	return sd >= p.cfg.MinStdDev && sd <= p.cfg.MaxStdDev
}

// maybePublish 按发布周期发布；有效性变化时立即发布
func (p *Pipeline) maybePublish(now time.Time) {
	due := !p.published || now.Sub(p.lastPublish) >= p.cfg.PublishInterval
	changed := p.published && p.signalValid != p.lastPublishedValid
	if !due && !changed {
		return
	}

	reading := models.CardiacReading{
		RawSample:    p.lastRaw,
		HeartRateBpm: p.detector.reported(now),
		SignalValid:  p.signalValid,
		TimestampMs:  now.UnixMilli(),
	}

	if err := p.out.Publish(reading); err != nil {
		// 锁超时，下个周期重试
		p.logger.Debug("Skipped cardiac publish", zap.Error(err))
		return
	}

	p.published = true
	p.lastPublish = now
	p.lastPublishedValid = p.signalValid
}
