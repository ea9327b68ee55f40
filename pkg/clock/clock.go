// Package clock 抽象時間來源，讓房間計時與限流器可以在測試中手動推進時間。
package clock

import "time"

// Timer 可取消的一次性排程
type Timer interface {
	// Stop 取消排程，回傳 false 表示已觸發或已取消
	Stop() bool
}

// Ticker 週期觸發器
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock 時間來源
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Real 使用系統時間
type Real struct{}

// New 返回系統時鐘
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
