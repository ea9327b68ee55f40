package clock_test

import (
	"testing"
	"time"

	"github.com/koopa0/system-design/14-party-relay/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresInOrder(t *testing.T) {
	c := clock.NewFake(epoch)

	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, epoch.Add(6500*time.Millisecond), c.Now())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	c := clock.NewFake(epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFake_CallbackSeesDueTime(t *testing.T) {
	c := clock.NewFake(epoch)

	var seen time.Time
	c.AfterFunc(4*time.Second, func() { seen = c.Now() })
	c.Advance(10 * time.Second)

	assert.Equal(t, epoch.Add(4*time.Second), seen)
}

func TestFake_CallbackCanReschedule(t *testing.T) {
	c := clock.NewFake(epoch)

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestFake_Ticker(t *testing.T) {
	c := clock.NewFake(epoch)
	ticker := c.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	c.Advance(4 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(time.Minute)
	select {
	case at := <-ticker.C():
		assert.Equal(t, epoch.Add(5*time.Minute), at)
	default:
		require.Fail(t, "ticker did not fire")
	}
}
