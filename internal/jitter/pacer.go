package jitter

import "time"

// maxLagFrames is how far the loop may fall behind before its deadline is re-anchored.
const maxLagFrames = 10

// Pacer produces fixed-cadence deadlines. Each deadline is the previous one plus one frame,
// so processing delay on one tick is absorbed by shorter waits on the next ticks instead of
// accumulating as drift.
type Pacer struct {
	frame    time.Duration
	deadline time.Time
}

func NewPacer(frame time.Duration) *Pacer {
	return &Pacer{frame: frame}
}

// Reset anchors the cadence at now.
func (p *Pacer) Reset(now time.Time) {
	p.deadline = now
}

// Next advances the deadline by one frame and returns how long to wait from now.
// After a long stall the cadence restarts from now rather than bursting to catch up.
func (p *Pacer) Next(now time.Time) time.Duration {
	if p.deadline.IsZero() {
		p.deadline = now
	}
	p.deadline = p.deadline.Add(p.frame)
	wait := p.deadline.Sub(now)
	if wait < -maxLagFrames*p.frame {
		p.deadline = now.Add(p.frame)
		return p.frame
	}
	return max(wait, 0)
}
