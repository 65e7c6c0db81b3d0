package consumer

import (
	"context"
	"time"

	"elderguard/internal/models"
	"elderguard/internal/store"

	"go.uber.org/zap"
)

const audioWaitTimeout = 500 * time.Millisecond

// Player 音频播放模块
type Player interface {
	Play(ctx context.Context, cmd models.AudioCommand) error
}

// LogPlayer 无音频硬件时只记录播放指令
type LogPlayer struct {
	logger *zap.Logger
}

// NewLogPlayer 创建日志播放器
func NewLogPlayer(logger *zap.Logger) *LogPlayer {
	return &LogPlayer{logger: logger}
}

func (p *LogPlayer) Play(_ context.Context, cmd models.AudioCommand) error {
	p.logger.Info("Playing sound",
		zap.Int("sound_id", cmd.SoundID),
		zap.Int("repeat_count", cmd.RepeatCount),
		zap.Int("volume", cmd.Volume),
	)
	return nil
}

// AudioSink 把音频信道上的指令交给播放模块
type AudioSink struct {
	store     *store.Store
	player    Player
	maxVolume int
	logger    *zap.Logger
}

// NewAudioSink 创建音频输出
func NewAudioSink(st *store.Store, player Player, maxVolume int, logger *zap.Logger) *AudioSink {
	return &AudioSink{
		store:     st,
		player:    player,
		maxVolume: maxVolume,
		logger:    logger,
	}
}

// Start 等待音频指令
func (s *AudioSink) Start(ctx context.Context) error {
	s.logger.Info("Audio sink started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Audio sink stopped")
			return nil
		default:
		}

		if !s.store.Audio().WaitForUpdate(audioWaitTimeout) {
			continue
		}
		if _, err := s.PlayPending(ctx); err != nil {
			s.logger.Warn("Failed to play sound", zap.Error(err))
		}
	}
}

// PlayPending 播放尚未消费的指令
func (s *AudioSink) PlayPending(ctx context.Context) (bool, error) {
	cmd, fresh, err := s.store.Audio().Consume()
	if err != nil || !fresh {
		return false, err
	}

	if cmd.Volume < 0 {
		cmd.Volume = 0
	}
	if cmd.Volume > s.maxVolume {
		cmd.Volume = s.maxVolume
	}
	return true, s.player.Play(ctx, cmd)
}
