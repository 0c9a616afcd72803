package receiver

import (
	"math"
	"sync"
	"time"

	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/protocol"
)

// jitterSmoothing is the RFC 3550 interarrival jitter gain.
const jitterSmoothing = 16.0

// arrivals tracks packet counts and an interarrival jitter estimate for the current
// sender session.
type arrivals struct {
	mu sync.Mutex

	received uint64
	bytes    uint64

	session     uint32
	hasSession  bool
	clock       time.Time
	lastTransit float64
	jitterMs    float64
}

// Observe records an Audio or Pcm packet arriving at now.
func (a *arrivals) Observe(now time.Time, session, seq uint32, payloadLen int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.received++
	a.bytes += uint64(payloadLen)

	frameMs := float64(codec.FrameDuration / time.Millisecond)
	if !a.hasSession || session != a.session {
		// a new sender: restart the transit baseline so its first packet is not a spike
		a.session, a.hasSession = session, true
		a.clock = now.Add(-time.Duration(seq) * codec.FrameDuration)
		a.lastTransit = 0
		return
	}

	arrivalMs := float64(now.Sub(a.clock)) / float64(time.Millisecond)
	transit := arrivalMs - float64(seq)*frameMs
	d := transit - a.lastTransit
	a.lastTransit = transit
	a.jitterMs += (math.Abs(d) - a.jitterMs) / jitterSmoothing
}

func (a *arrivals) Received() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}

// Summary builds the stats report from the arrival counters, the number of frames the
// playout had to conceal, and the queued output duration.
func (a *arrivals) Summary(lost uint64, delay time.Duration) protocol.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	loss := 0
	if total := a.received + lost; total > 0 {
		loss = int(lost * 100 / total)
	}
	return protocol.Stats{
		LossPercent: loss,
		JitterMs:    int(math.Round(a.jitterMs)),
		DelayMs:     int(delay / time.Millisecond),
	}
}

func (a *arrivals) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.received, a.bytes = 0, 0
	a.hasSession = false
	a.lastTransit, a.jitterMs = 0, 0
}
