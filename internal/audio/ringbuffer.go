package audio

import (
	"encoding/binary"
	"sync/atomic"
)

// RingBuffer is a bounded queue of samples between an audio device callback and the engine.
// Safe for one producer and one consumer; when full, incoming samples are discarded.
// reference: https://en.wikipedia.org/wiki/Circular_buffer
type RingBuffer struct {
	buffer []int16

	// one slot is always left empty to tell full from empty
	size int64
	writeIdx,
	readIdx atomic.Int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]int16, capacity+1),
		size:   int64(capacity + 1),
	}
}

// Cap returns how many samples the buffer holds when full.
func (rb *RingBuffer) Cap() int { return int(rb.size - 1) }

// Len returns how many samples are waiting to be read.
func (rb *RingBuffer) Len() int {
	writeIdx := rb.writeIdx.Load()
	readIdx := rb.readIdx.Load()
	if writeIdx >= readIdx {
		return int(writeIdx - readIdx)
	}
	return int(rb.size - readIdx + writeIdx) // go around the ring
}

// Write copies as much of src as fits and returns the number of samples written.
func (rb *RingBuffer) Write(src []int16) int {
	n := min(len(src), rb.Cap()-rb.Len())
	if n <= 0 {
		return 0
	}

	writeIdx := rb.writeIdx.Load()
	first := min(int64(n), rb.size-writeIdx)
	copy(rb.buffer[writeIdx:], src[:first])
	copy(rb.buffer, src[first:n])
	rb.writeIdx.Store((writeIdx + int64(n)) % rb.size) // publish write
	return n
}

// Read moves up to len(dst) samples into dst and returns how many were read.
func (rb *RingBuffer) Read(dst []int16) int {
	n := min(len(dst), rb.Len())
	if n == 0 {
		return 0
	}

	readIdx := rb.readIdx.Load()
	first := min(int64(n), rb.size-readIdx)
	copy(dst, rb.buffer[readIdx:readIdx+first])
	copy(dst[first:n], rb.buffer)
	rb.readIdx.Store((readIdx + int64(n)) % rb.size) // publish read
	return n
}

// ReadBytes is Read for a device buffer of little-endian 16-bit samples. It returns the
// number of samples written to dst.
func (rb *RingBuffer) ReadBytes(dst []byte) int {
	n := min(len(dst)/bytesPerSample, rb.Len())

	readIdx := rb.readIdx.Load()
	for i := range n {
		idx := (readIdx + int64(i)) % rb.size
		binary.LittleEndian.PutUint16(dst[i*bytesPerSample:], uint16(rb.buffer[idx]))
	}
	rb.readIdx.Store((readIdx + int64(n)) % rb.size)
	return n
}
