package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.False(t, Sleep(ctx, 0))
}

func TestWaitTimeout(t *testing.T) {
	var wg sync.WaitGroup
	release := make(chan struct{})
	wg.Go(func() { <-release })

	assert.False(t, WaitTimeout(&wg, 20*time.Millisecond))
	close(release)
	assert.True(t, WaitTimeout(&wg, time.Second))
}

func TestEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 10)
	done := make(chan struct{})
	go func() {
		Every(ctx, time.Millisecond, func(now time.Time) {
			select {
			case ticks <- now:
			default:
			}
		})
		close(done)
	}()

	<-ticks
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestStatusLatch(t *testing.T) {
	var l StatusLatch
	assert.True(t, l.Set(StatusConnecting))
	assert.False(t, l.Set(StatusConnecting))
	assert.True(t, l.Set(StatusConnected))
	assert.Equal(t, StatusConnected, l.Get())
}

func TestFloat64(t *testing.T) {
	f := NewFloat64(1.5)
	assert.Equal(t, 1.5, f.Load())
	f.Store(-0.25)
	assert.Equal(t, -0.25, f.Load())
}

func TestEventsNilSafe(t *testing.T) {
	var e Events
	assert.NotPanics(t, func() {
		e.EmitStatus("x")
		e.EmitWarning("x")
		e.EmitStats(protocol.Stats{})
		e.EmitError(errors.New("x"))
	})

	var got []string
	e.Status = func(s string) { got = append(got, s) }
	e.EmitStatus(StatusListening)
	assert.Equal(t, []string{StatusListening}, got)
}
