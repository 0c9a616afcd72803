package protocol

import (
	"crypto/rand"
	"encoding/binary"
)

// NewSessionID picks a random non-zero identifier for one sender run, so a receiver can
// tell a restarted sender apart from the previous instance.
func NewSessionID() uint32 {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		if id := binary.BigEndian.Uint32(b[:]); id != 0 {
			return id
		}
	}
}

// SeqBefore reports whether sequence a precedes b, treating the 32-bit space as circular.
func SeqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// SeqDistance returns how far b is ahead of a (negative when b precedes a).
func SeqDistance(a, b uint32) int32 {
	return int32(b - a)
}
