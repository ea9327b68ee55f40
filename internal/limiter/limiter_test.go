package limiter_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-party-relay/internal/limiter"
	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TestLimiter_Allow 前 maxCalls 次允許，之後拒絕直到視窗結束
func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		maxCalls int
		window   time.Duration
	}{
		{name: "single call", maxCalls: 1, window: time.Second},
		{name: "drawing burst", maxCalls: 60, window: time.Second},
		{name: "chat", maxCalls: 5, window: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.NewFake(epoch)
			l := limiter.New(c)

			for i := 0; i < tt.maxCalls; i++ {
				assert.True(t, l.Allow("conn", "act", tt.maxCalls, tt.window), "call %d", i+1)
			}
			for i := 0; i < 3; i++ {
				assert.False(t, l.Allow("conn", "act", tt.maxCalls, tt.window))
			}

			// 剛好等於視窗長度還不算過期
			c.Advance(tt.window)
			assert.False(t, l.Allow("conn", "act", tt.maxCalls, tt.window))

			c.Advance(time.Millisecond)
			for i := 0; i < tt.maxCalls; i++ {
				assert.True(t, l.Allow("conn", "act", tt.maxCalls, tt.window), "after reset call %d", i+1)
			}
			assert.False(t, l.Allow("conn", "act", tt.maxCalls, tt.window))
		})
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := limiter.New(clock.NewFake(epoch))

	assert.True(t, l.Allow("a", "drawLine", 1, time.Second))
	assert.False(t, l.Allow("a", "drawLine", 1, time.Second))

	assert.True(t, l.Allow("a", "chatMsg", 1, time.Second))
	assert.True(t, l.Allow("b", "drawLine", 1, time.Second))
}

func TestLimiter_NonPositiveMaxIsUnlimited(t *testing.T) {
	l := limiter.New(clock.NewFake(epoch))

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a", "x", 0, time.Second))
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_AllowRule(t *testing.T) {
	l := limiter.New(clock.NewFake(epoch))
	rule := limiter.Rule{Max: 2, Window: time.Second}

	assert.True(t, l.AllowRule("a", "pongBall", rule))
	assert.True(t, l.AllowRule("a", "pongBall", rule))
	assert.False(t, l.AllowRule("a", "pongBall", rule))
}

func TestLimiter_Forget(t *testing.T) {
	l := limiter.New(clock.NewFake(epoch))

	l.Allow("a", "x", 1, time.Second)
	l.Allow("a", "y", 1, time.Second)
	l.Allow("b", "x", 1, time.Second)
	assert.Equal(t, 3, l.Len())

	l.Forget("a")
	assert.Equal(t, 1, l.Len())

	// 遺忘後重新計數
	assert.True(t, l.Allow("a", "x", 1, time.Second))
}

func TestLimiter_ReclaimsIdleKeys(t *testing.T) {
	c := clock.NewFake(epoch)
	l := limiter.New(c, limiter.WithReclaimEvery(10))

	for i := 0; i < 9; i++ {
		l.Allow(fmt.Sprintf("conn-%d", i), "x", 5, time.Second)
	}
	assert.Equal(t, 9, l.Len())

	c.Advance(3 * time.Second)
	// 第 10 次呼叫觸發清理，只留下剛建立的鍵
	l.Allow("fresh", "x", 5, time.Second)
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	l := limiter.New(clock.NewFake(epoch))

	var (
		wg      sync.WaitGroup
		allowed int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Allow("shared", "x", 100, time.Minute) {
					atomic.AddInt32(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed)
}
