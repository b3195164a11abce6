// Package notify 实现自动过期的通知通道：同一时刻最多一条错误和一条成功消息
// Package notify implements the auto-expiring notification channel: at
// most one error and one success message are visible at a time, each on
// its own expiry timer.
package notify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL 消息自动过期时间
// DefaultTTL is how long a message stays visible before self-expiring.
const DefaultTTL = 5 * time.Second

// Kind 通知类型
// Kind is the notification kind.
type Kind int

const (
	KindError Kind = iota
	KindSuccess
)

// Notifications 当前可见消息的快照
// Notifications is a snapshot of the currently visible messages.
type Notifications struct {
	Error   string
	Success string
}

type slot struct {
	message string
	timer   clockwork.Timer
	seq     uint64
}

// Center 持有两个独立的可取消过期槽位。并发安全。
// Center holds two independent cancellable expiry slots. Safe for
// concurrent use.
type Center struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	slots [2]slot

	// onChange 每次可见状态变化后调用（持锁外），供 UI 订阅
	// onChange fires after every visible-state change (outside the lock)
	// so a UI can subscribe.
	onChange func(Notifications)
}

// NewCenter 创建通知中心；clock 为 nil 时使用真实时钟
// NewCenter creates a notification center; a nil clock means wall clock.
func NewCenter(clock clockwork.Clock, ttl time.Duration) *Center {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{clock: clock, ttl: ttl}
}

// SetOnChange 注册状态变化回调
// SetOnChange registers the state-change callback.
func (c *Center) SetOnChange(fn func(Notifications)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Raise 替换同类消息并重置其过期定时器；另一类消息不受影响
// Raise replaces any existing message of the kind and restarts its expiry
// timer. The other kind is never affected. Re-raising before expiry resets
// the timer rather than stacking a second one.
func (c *Center) Raise(kind Kind, message string) {
	c.mu.Lock()
	s := &c.slots[kind]
	s.seq++
	seq := s.seq
	s.message = message
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = c.clock.AfterFunc(c.ttl, func() { c.expire(kind, seq) })
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Clear 立即清空两个槽位并取消定时器
// Clear empties both slots immediately and cancels both timers.
func (c *Center) Clear() {
	c.mu.Lock()
	for i := range c.slots {
		s := &c.slots[i]
		s.seq++
		s.message = ""
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Current 返回当前可见消息
// Current returns the currently visible messages.
func (c *Center) Current() Notifications {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Notifications{
		Error:   c.slots[KindError].message,
		Success: c.slots[KindSuccess].message,
	}
}

// expire 仅当槽位未被重新 Raise 或 Clear 时清空。
// seq 校验保证“后写获胜”：过期回调绝不复活已清除或已替换的消息。
// expire clears the slot only when it was not re-raised or cleared in the
// meantime. The seq check guarantees later-write-wins: an expiry callback
// never resurrects a cleared or replaced message.
func (c *Center) expire(kind Kind, seq uint64) {
	c.mu.Lock()
	s := &c.slots[kind]
	if s.seq != seq {
		c.mu.Unlock()
		return
	}
	s.message = ""
	s.timer = nil
	snapshot, fn := c.snapshotLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

func (c *Center) snapshotLocked() (Notifications, func(Notifications)) {
	return Notifications{
		Error:   c.slots[KindError].message,
		Success: c.slots[KindSuccess].message,
	}, c.onChange
}
