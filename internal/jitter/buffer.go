// Package jitter reorders arriving frames by sequence number and decides, once per frame
// tick, what the output should play: the expected frame, or a concealment of it.
package jitter

import (
	"sync"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
)

// Entry is one buffered frame.
type Entry struct {
	Kind    protocol.Kind
	Payload []byte
}

// InsertResult tells the caller what happened to an arriving frame.
type InsertResult int

const (
	Stored InsertResult = iota
	Duplicate
	Late
)

// Buffer maps sequence numbers to frames. It is written by the network receive loop and
// drained by the playout loop; a single mutex guards every access.
type Buffer struct {
	mu      sync.Mutex
	entries map[uint32]Entry

	session    uint32
	hasSession bool

	// epoch changes whenever the contents are discarded wholesale
	epoch uint64

	started  bool
	origin   uint32
	originAt time.Time

	// sequences before floor have already been played or concealed
	floor    uint32
	hasFloor bool

	lastKind    protocol.Kind
	lastArrival time.Time
}

// snapshot is a consistent view of the buffer taken under one lock.
type snapshot struct {
	epoch       uint64
	started     bool
	origin      uint32
	originAt    time.Time
	lastKind    protocol.Kind
	lastArrival time.Time
	count       int
}

func NewBuffer() *Buffer {
	return &Buffer{
		entries:  make(map[uint32]Entry),
		lastKind: protocol.KindAudio,
	}
}

// Insert stores a frame unless one with the same sequence is already buffered (the first
// arrival wins) or its slot has already been played. A new session id means the sender
// restarted, so everything buffered for the old session is discarded first.
func (b *Buffer) Insert(now time.Time, session, seq uint32, e Entry) InsertResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasSession && session != b.session {
		b.resetLocked()
	}
	b.session, b.hasSession = session, true
	b.lastArrival = now

	if b.hasFloor && protocol.SeqBefore(seq, b.floor) {
		return Late
	}
	if _, ok := b.entries[seq]; ok {
		return Duplicate
	}

	b.entries[seq] = e
	b.lastKind = e.Kind
	if !b.started {
		b.started = true
		b.origin = seq
		b.originAt = now
	}
	return Stored
}

// Take removes and returns the frame at seq.
func (b *Buffer) Take(seq uint32) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.takeLocked(seq)
}

// Peek returns the frame at seq without removing it.
func (b *Buffer) Peek(seq uint32) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[seq]
	return e, ok
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Oldest returns the earliest buffered sequence, comparing circularly from the play floor
// (or from the first sequence seen, before playback has begun).
func (b *Buffer) Oldest() (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oldestLocked()
}

// Advance marks every sequence before next as consumed: buffered frames behind it are
// dropped and later arrivals for those slots are refused. It returns how many were dropped.
func (b *Buffer) Advance(next uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advanceLocked(next)
}

// The epoch-scoped variants below are what the scheduler uses within a tick. They do
// nothing once the buffer has moved to another epoch, so a reset racing a tick cannot
// carry the old stream's position into the new one.

func (b *Buffer) takeIn(epoch uint64, seq uint32) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return Entry{}, false
	}
	return b.takeLocked(seq)
}

func (b *Buffer) peekIn(epoch uint64, seq uint32) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return Entry{}, false
	}
	e, ok := b.entries[seq]
	return e, ok
}

func (b *Buffer) oldestIn(epoch uint64) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return 0, false
	}
	return b.oldestLocked()
}

func (b *Buffer) advanceIn(epoch uint64, next uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if epoch != b.epoch {
		return 0
	}
	return b.advanceLocked(next)
}

func (b *Buffer) takeLocked(seq uint32) (Entry, bool) {
	e, ok := b.entries[seq]
	if ok {
		delete(b.entries, seq)
	}
	return e, ok
}

func (b *Buffer) oldestLocked() (uint32, bool) {
	ref := b.origin
	if b.hasFloor {
		ref = b.floor
	}

	var (
		oldest uint32
		best   int32
		found  bool
	)
	for seq := range b.entries {
		d := protocol.SeqDistance(ref, seq)
		if !found || d < best {
			oldest, best, found = seq, d, true
		}
	}
	return oldest, found
}

func (b *Buffer) advanceLocked(next uint32) int {
	b.floor, b.hasFloor = next, true
	dropped := 0
	for seq := range b.entries {
		if protocol.SeqBefore(seq, next) {
			delete(b.entries, seq)
			dropped++
		}
	}
	return dropped
}

// Reset discards everything and starts a new epoch. The session id is kept.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// ResetIfStale resets the buffer when nothing has arrived for longer than timeout.
func (b *Buffer) ResetIfStale(now time.Time, timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started || now.Sub(b.lastArrival) <= timeout {
		return false
	}
	b.resetLocked()
	return true
}

func (b *Buffer) resetLocked() {
	clear(b.entries)
	b.epoch++
	b.started = false
	b.hasFloor = false
	b.lastKind = protocol.KindAudio
}

func (b *Buffer) snapshot() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return snapshot{
		epoch:       b.epoch,
		started:     b.started,
		origin:      b.origin,
		originAt:    b.originAt,
		lastKind:    b.lastKind,
		lastArrival: b.lastArrival,
		count:       len(b.entries),
	}
}
