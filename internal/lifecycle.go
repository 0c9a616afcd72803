package internal

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// StopTimeout bounds how long a pipeline waits for its loops when stopping.
const StopTimeout = 500 * time.Millisecond

// Sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Every runs fn each interval until ctx is done.
func Every(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// WaitTimeout waits for wg, giving up after d. It reports whether wg finished.
func WaitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// StatusLatch remembers the last reported status so repeats can be dropped.
type StatusLatch struct {
	mu   sync.Mutex
	last string
}

// Set records text and reports whether it differs from the previous value.
func (l *StatusLatch) Set(text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if text == l.last {
		return false
	}
	l.last = text
	return true
}

func (l *StatusLatch) Get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Float64 is a float64 that may be read and written from any goroutine.
type Float64 struct {
	bits atomic.Uint64
}

func NewFloat64(v float64) *Float64 {
	f := &Float64{}
	f.Store(v)
	return f
}

func (f *Float64) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *Float64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
