package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake 手動推進的時鐘
//
// Advance 會依時間順序同步執行到期的 AfterFunc 回呼（在呼叫者的 goroutine 中，
// 且不持有 Fake 的鎖），並對到期的 Ticker 做非阻塞送出。
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake 建立起始於 start 的假時鐘
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn, seq: f.seq}
	f.timers = append(f.timers, t)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{clock: f, period: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance 將時間往前推 d，途中觸發所有到期的排程
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		timer, ticker, at := f.nextDueLocked(target)
		if timer == nil && ticker == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at
		if timer != nil {
			f.removeTimerLocked(timer)
			f.mu.Unlock()
			timer.fn()
			continue
		}
		ticker.next = ticker.next.Add(ticker.period)
		f.mu.Unlock()
		select {
		case ticker.ch <- at:
		default:
		}
	}
}

// Pending 返回尚未觸發的排程數量
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Tickers 返回尚未停止的 Ticker 數量
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) nextDueLocked(target time.Time) (*fakeTimer, *fakeTicker, time.Time) {
	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].at.Equal(f.timers[j].at) {
			return f.timers[i].seq < f.timers[j].seq
		}
		return f.timers[i].at.Before(f.timers[j].at)
	})

	var (
		timer  *fakeTimer
		ticker *fakeTicker
		at     time.Time
	)
	if len(f.timers) > 0 && !f.timers[0].at.After(target) {
		timer = f.timers[0]
		at = timer.at
	}
	for _, t := range f.tickers {
		if t.stopped || t.next.After(target) {
			continue
		}
		if timer != nil && !t.next.Before(at) {
			continue
		}
		if ticker == nil || t.next.Before(ticker.next) {
			ticker = t
		}
	}
	if ticker != nil {
		return nil, ticker, ticker.next
	}
	return timer, nil, at
}

func (f *Fake) removeTimerLocked(t *fakeTimer) bool {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
	seq   int
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeTimerLocked(t)
}

type fakeTicker struct {
	clock   *Fake
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
