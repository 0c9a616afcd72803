package protocol

import (
	"encoding/binary"
	"math"
)

const (
	statsMinSize = 4
	statsSize    = 6
)

// Stats is the receiver's periodic diagnostic summary sent back to the sender.
type Stats struct {
	LossPercent int
	JitterMs    int
	DelayMs     int
}

// EncodeStats serializes s as [loss(2) | jitter(2) | delay(2)], clamping each field to uint16.
func EncodeStats(s Stats) []byte {
	buf := make([]byte, statsSize)
	binary.BigEndian.PutUint16(buf[0:2], clampU16(s.LossPercent))
	binary.BigEndian.PutUint16(buf[2:4], clampU16(s.JitterMs))
	binary.BigEndian.PutUint16(buf[4:6], clampU16(s.DelayMs))
	return buf
}

// ParseStats decodes a stats payload. The delay field is optional.
func ParseStats(payload []byte) (Stats, bool) {
	if len(payload) < statsMinSize {
		return Stats{}, false
	}
	s := Stats{
		LossPercent: int(binary.BigEndian.Uint16(payload[0:2])),
		JitterMs:    int(binary.BigEndian.Uint16(payload[2:4])),
	}
	if len(payload) >= statsSize {
		s.DelayMs = int(binary.BigEndian.Uint16(payload[4:6]))
	}
	return s, true
}

// BuildStats builds a complete stats packet. Stats are not tied to a sender session.
func BuildStats(s Stats) []byte {
	return Build(KindStats, 0, 0, EncodeStats(s))
}

func clampU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
