// Package limiter 實作以（連線, 動作）為鍵的固定視窗限流器。
//
// 每個鍵記錄視窗起點與計數：
//   - 距視窗起點超過 window → 重設計數為 1、起點為現在，允許
//   - 否則計數加一，計數 <= maxCalls 才允許
//
// 被拒絕的呼叫由呼叫端直接丟棄，不會回報給發送者。
package limiter

import (
	"sync"
	"time"

	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
)

// DefaultReclaimEvery 每處理多少次呼叫順便清一次過期鍵
const DefaultReclaimEvery = 1024

// Rule 單一動作的限流規則
type Rule struct {
	Max    int
	Window time.Duration
}

type key struct {
	conn   string
	action string
}

type counter struct {
	count  int
	start  time.Time
	window time.Duration
}

// Limiter 限流器，併發安全
type Limiter struct {
	clock        clock.Clock
	reclaimEvery int

	mu       sync.Mutex
	counters map[key]*counter
	calls    int
}

// Option 設定選項
type Option func(*Limiter)

// WithReclaimEvery 調整過期鍵的清理頻率
func WithReclaimEvery(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.reclaimEvery = n
		}
	}
}

// New 建立限流器
func New(c clock.Clock, opts ...Option) *Limiter {
	l := &Limiter{
		clock:        c,
		reclaimEvery: DefaultReclaimEvery,
		counters:     make(map[key]*counter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow 檢查 (connID, action) 在目前視窗內是否還有額度
//
// maxCalls <= 0 視為不限流。
func (l *Limiter) Allow(connID, action string, maxCalls int, window time.Duration) bool {
	if maxCalls <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%l.reclaimEvery == 0 {
		l.reclaimLocked(now)
	}

	k := key{conn: connID, action: action}
	c, ok := l.counters[k]
	if !ok {
		l.counters[k] = &counter{count: 1, start: now, window: window}
		return true
	}
	if now.Sub(c.start) > window {
		c.count = 1
		c.start = now
		c.window = window
		return true
	}

	c.count++
	return c.count <= maxCalls
}

// AllowRule 與 Allow 相同，規則以 Rule 表示
func (l *Limiter) AllowRule(connID, action string, rule Rule) bool {
	return l.Allow(connID, action, rule.Max, rule.Window)
}

// Forget 移除某連線的所有計數（斷線時呼叫）
func (l *Limiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.counters {
		if k.conn == connID {
			delete(l.counters, k)
		}
	}
}

// Len 目前追蹤中的鍵數
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// reclaimLocked 移除閒置超過兩個視窗的鍵；這些鍵下次呼叫本來就會重設
func (l *Limiter) reclaimLocked(now time.Time) {
	for k, c := range l.counters {
		if now.Sub(c.start) > 2*c.window {
			delete(l.counters, k)
		}
	}
}
