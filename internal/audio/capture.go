package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Source yields captured mono PCM in arbitrarily sized chunks.
type Source interface {
	// Read copies up to len(pcm) buffered samples and returns how many were copied.
	// It never blocks.
	Read(pcm []int16) int
	// Stopped is closed if the device stops on its own, e.g. when it is unplugged.
	Stopped() <-chan struct{}
	Close() error
}

// Capture is a microphone Source backed by a miniaudio capture device.
type Capture struct {
	dev  *device
	pcm  *RingBuffer
	conv []int16

	stopped  chan struct{}
	stopOnce sync.Once
	closing  atomic.Bool
}

// OpenCapture starts capturing from the named device (empty for the system default).
func OpenCapture(name string) (*Capture, error) {
	c := &Capture{
		pcm:     NewRingBuffer(samplesFor(CaptureBuffer)),
		stopped: make(chan struct{}),
	}

	// read into capture buffer, to write to network. this fires every period
	onRecvFrames := func(_, pInputSample []byte, framecount uint32) {
		n := min(int(framecount)*numChannels, len(pInputSample)/bytesPerSample)
		if cap(c.conv) < n {
			c.conv = make([]int16, n)
		}
		samples := c.conv[:n]
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pInputSample[i*bytesPerSample:]))
		}
		c.pcm.Write(samples)
	}
	onStop := func() {
		if c.closing.Load() {
			return
		}
		log.Warn("capture device stopped")
		c.stopOnce.Do(func() { close(c.stopped) })
	}

	dev, err := openDevice(malgo.Capture, name, malgo.DeviceCallbacks{
		Data: onRecvFrames,
		Stop: onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing capture device: %w", err)
	}
	c.dev = dev

	if err := dev.dev.Start(); err != nil {
		c.closing.Store(true)
		dev.close()
		return nil, fmt.Errorf("error starting capture device: %w", err)
	}
	return c, nil
}

func (c *Capture) Read(pcm []int16) int { return c.pcm.Read(pcm) }

func (c *Capture) Stopped() <-chan struct{} { return c.stopped }

func (c *Capture) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.dev.close()
	return nil
}
