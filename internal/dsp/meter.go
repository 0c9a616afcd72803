package dsp

import (
	"math"
	"strings"
	"time"
)

const (
	meterFloorDb    = -120.0
	meterPeakDecay  = 0.15
	meterRmsSmooth  = 0.3
	clipThreshold   = 0.89
	lowLevelHold    = 2 * time.Second
	clipHold        = time.Second
	WarnClip        = "clipping"
	WarnLowLevel    = "low input level"
	DefaultVadFloor = -45.0
)

// Meter smooths levels for display: peaks jump up instantly and fall back slowly,
// RMS follows with a one-pole filter.
type Meter struct {
	peakDb float64
	rmsDb  float64
	primed bool
}

// Update feeds one frame's linear peak and RMS and returns the smoothed level.
func (m *Meter) Update(peak, rms float64) Level {
	peakDb := math.Max(LinearToDb(peak), meterFloorDb)
	rmsDb := math.Max(LinearToDb(rms), meterFloorDb)
	if !m.primed {
		m.peakDb, m.rmsDb, m.primed = peakDb, rmsDb, true
		return m.Level()
	}

	if peakDb > m.peakDb {
		m.peakDb = peakDb
	} else {
		m.peakDb = lerp(m.peakDb, peakDb, meterPeakDecay)
	}
	m.rmsDb = lerp(m.rmsDb, rmsDb, meterRmsSmooth)
	return m.Level()
}

func (m *Meter) Level() Level {
	return Level{PeakDb: m.peakDb, RmsDb: m.rmsDb}
}

// Warnings derives clip and low-level indicators with hold times so they don't flicker
// on and off from frame to frame.
type Warnings struct {
	// LowLevelDb is the RMS below which input counts as too quiet.
	LowLevelDb float64

	lowSince  time.Time
	clipUntil time.Time
	last      string
}

func NewWarnings(lowLevelDb float64) *Warnings {
	return &Warnings{LowLevelDb: lowLevelDb}
}

// Update evaluates one frame and returns the current warning text (empty when clear)
// and whether it differs from the previous call.
func (w *Warnings) Update(now time.Time, peak, rmsDb float64) (string, bool) {
	var active []string

	if rmsDb < w.LowLevelDb {
		if w.lowSince.IsZero() {
			w.lowSince = now
		}
		if now.Sub(w.lowSince) >= lowLevelHold {
			active = append(active, WarnLowLevel)
		}
	} else {
		w.lowSince = time.Time{}
	}

	if peak > clipThreshold {
		w.clipUntil = now.Add(clipHold)
	}
	if now.Before(w.clipUntil) {
		active = append(active, WarnClip)
	}

	text := strings.Join(active, " / ")
	changed := text != w.last
	w.last = text
	return text, changed
}
