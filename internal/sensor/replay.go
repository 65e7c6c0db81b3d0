package sensor

import (
	"context"
	"sync"
)

// ReplayAnalog 回放录制的心电采样，回放完毕后保持最后一个值
type ReplayAnalog struct {
	mu      sync.Mutex
	samples []int
	pos     int
}

func NewReplayAnalog(samples []int) *ReplayAnalog {
	return &ReplayAnalog{samples: samples}
}

func (r *ReplayAnalog) ReadSample() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return 0
	}
	if r.pos >= len(r.samples) {
		return r.samples[len(r.samples)-1]
	}
	v := r.samples[r.pos]
	r.pos++
	return v
}

// ReplayInertial 回放录制的惯性采样
type ReplayInertial struct {
	mu      sync.Mutex
	samples []InertialSample
	pos     int

	InitErr error // 非 nil 时 Init 失败
	ReadErr error // 非 nil 时 ReadInertial 失败
}

func NewReplayInertial(samples []InertialSample) *ReplayInertial {
	return &ReplayInertial{samples: samples}
}

func (r *ReplayInertial) Init(ctx context.Context) error {
	if r.InitErr != nil {
		return r.InitErr
	}
	return ctx.Err()
}

func (r *ReplayInertial) ReadInertial() (InertialSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ReadErr != nil {
		return InertialSample{}, r.ReadErr
	}
	if len(r.samples) == 0 {
		return InertialSample{}, nil
	}
	if r.pos >= len(r.samples) {
		return r.samples[len(r.samples)-1], nil
	}
	v := r.samples[r.pos]
	r.pos++
	return v, nil
}

// Remaining 尚未回放的采样数
func (r *ReplayInertial) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) - r.pos
}
