package receiver

import (
	"fmt"
	"strings"
	"time"
)

// JitterMode trades latency for resilience on the receiving side.
type JitterMode int

const (
	LowLatency JitterMode = iota
	Stable
	UltraStable
)

func ParseJitterMode(s string) (JitterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "low-latency", "lowlatency":
		return LowLatency, nil
	case "stable":
		return Stable, nil
	case "ultra", "ultra-stable", "ultrastable":
		return UltraStable, nil
	}
	return LowLatency, fmt.Errorf("unknown jitter mode %q", s)
}

func (m JitterMode) String() string {
	switch m {
	case Stable:
		return "stable"
	case UltraStable:
		return "ultra-stable"
	default:
		return "low-latency"
	}
}

// Prebuffer is how much audio is queued before output starts.
func (m JitterMode) Prebuffer() time.Duration {
	switch m {
	case Stable:
		return 220 * time.Millisecond
	case UltraStable:
		return 320 * time.Millisecond
	default:
		return 120 * time.Millisecond
	}
}

// SinkCapacity is the size of the output queue; audio beyond it is discarded.
func (m JitterMode) SinkCapacity() time.Duration {
	switch m {
	case Stable:
		return 3500 * time.Millisecond
	case UltraStable:
		return 4500 * time.Millisecond
	default:
		return 1800 * time.Millisecond
	}
}

// RebufferThreshold is the queued duration below which a running output pauses.
func (m JitterMode) RebufferThreshold() time.Duration {
	return max(minRebuffer, m.Prebuffer()/2)
}

const (
	minRebuffer = 40 * time.Millisecond

	DefaultForceStart = time.Second
	minForceStart     = 200 * time.Millisecond
	maxForceStart     = 5 * time.Second
)

// ClampForceStart keeps a configured forced-start timeout within sane bounds; zero means
// the default.
func ClampForceStart(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultForceStart
	}
	return min(max(d, minForceStart), maxForceStart)
}
