package backend

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// rateLimiter 以最小请求间隔限速。本地 Ollama 和托管 OpenAI
// 用不同的速率实例。
// rateLimiter enforces a minimum interval between requests. Local Ollama
// and hosted OpenAI each get their own instance.
type rateLimiter struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	minInterval time.Duration
	next        time.Time
}

// newRateLimiter 创建 rps 每秒请求数的限速器；rps <= 0 不限速
// newRateLimiter builds a limiter for rps requests per second; rps <= 0
// disables limiting.
func newRateLimiter(clock clockwork.Clock, rps float64) *rateLimiter {
	l := &rateLimiter{clock: clock}
	if rps > 0 {
		l.minInterval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// wait 阻塞到下一个可用时隙，或上下文取消
// wait blocks until the next slot opens or the context is cancelled.
func (l *rateLimiter) wait(ctx context.Context) error {
	if l.minInterval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.clock.Now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	l.next = at.Add(l.minInterval)
	l.mu.Unlock()

	delay := at.Sub(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(delay):
		return nil
	}
}
