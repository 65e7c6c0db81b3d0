// Package channel 提供单槽位共享信道：只保存最新值，新值覆盖旧值。
package channel

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrLockTimeout 在限定时间内未获得信道锁
var ErrLockTimeout = errors.New("channel lock timeout")

// Stats 信道统计
type Stats struct {
	Published uint64 // 成功发布次数
	Overwrote uint64 // 覆盖了未消费值的次数
	Skipped   uint64 // 因锁超时跳过的发布次数
}

// SharedChannel 单写多读的最新值信箱
//
// 结构：
//   - value/dirty 由 lock 保护
//   - lock 为容量 1 的 channel，用作可超时获取的互斥锁
//   - notify 在每次发布后关闭并替换，唤醒所有等待者
//
// 语义：读者只会看到完整的旧值或完整的新值；中间值可能被跳过（最新值优先）。
type SharedChannel[T any] struct {
	lock        chan struct{}
	lockTimeout time.Duration

	value  T
	dirty  bool
	notify chan struct{}

	published atomic.Uint64
	overwrote atomic.Uint64
	skipped   atomic.Uint64
}

// New 创建信道，lockTimeout 为每次加锁的最长等待时间
func New[T any](lockTimeout time.Duration) *SharedChannel[T] {
	return &SharedChannel[T]{
		lock:        make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		notify:      make(chan struct{}),
	}
}

func (c *SharedChannel[T]) acquire() bool {
	select {
	case c.lock <- struct{}{}:
		return true
	default:
	}
	if c.lockTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(c.lockTimeout)
	defer timer.Stop()
	select {
	case c.lock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (c *SharedChannel[T]) release() {
	<-c.lock
}

// Publish 覆盖当前值并置 dirty，随后唤醒等待者
// 锁超时返回 ErrLockTimeout，调用方应跳过本周期
func (c *SharedChannel[T]) Publish(v T) error {
	if !c.acquire() {
		c.skipped.Add(1)
		return ErrLockTimeout
	}
	if c.dirty {
		c.overwrote.Add(1)
	}
	c.value = v
	c.dirty = true
	wake := c.notify
	c.notify = make(chan struct{})
	c.release()

	close(wake)
	c.published.Add(1)
	return nil
}

// ReadLatest 返回最近一次完整发布的值（不改变 dirty）
func (c *SharedChannel[T]) ReadLatest() (T, error) {
	if !c.acquire() {
		var zero T
		return zero, ErrLockTimeout
	}
	v := c.value
	c.release()
	return v, nil
}

// Consume 返回当前值及自上次 Consume 以来是否有新发布，并清除 dirty
func (c *SharedChannel[T]) Consume() (T, bool, error) {
	if !c.acquire() {
		var zero T
		return zero, false, ErrLockTimeout
	}
	v, fresh := c.value, c.dirty
	c.dirty = false
	c.release()
	return v, fresh, nil
}

// Acknowledge 在锁内对当前值执行 ack；ack 返回 true 时返回修改前的值
// 用于消费方清除"待处理"标记，保证同一值只被确认一次
func (c *SharedChannel[T]) Acknowledge(ack func(v *T) bool) (T, bool, error) {
	var zero T
	if !c.acquire() {
		return zero, false, ErrLockTimeout
	}
	before := c.value
	ok := ack(&c.value)
	if ok {
		c.dirty = false
	}
	c.release()

	if !ok {
		return zero, false, nil
	}
	return before, true, nil
}

// WaitForUpdate 等待新值，已有未消费值时立即返回 true
func (c *SharedChannel[T]) WaitForUpdate(timeout time.Duration) bool {
	if !c.acquire() {
		return false
	}
	if c.dirty {
		c.release()
		return true
	}
	wait := c.notify
	c.release()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-wait:
		return true
	case <-timer.C:
		return false
	}
}

// Stats 返回统计信息
func (c *SharedChannel[T]) Stats() Stats {
	return Stats{
		Published: c.published.Load(),
		Overwrote: c.overwrote.Load(),
		Skipped:   c.skipped.Load(),
	}
}
