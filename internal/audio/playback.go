package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// Sink renders mono PCM from a bounded queue that is filled ahead of the device.
type Sink interface {
	// Write queues pcm and returns how many samples fit; the rest is discarded.
	Write(pcm []int16) int
	// Buffered reports how much queued audio has not been rendered yet.
	Buffered() time.Duration
	// Play starts or resumes rendering. Pause stops it, keeping the queue.
	Play() error
	Pause() error
	Close() error
}

// Playback is a speaker Sink backed by a miniaudio playback device.
type Playback struct {
	dev     *device
	pcm     *RingBuffer
	running atomic.Bool
	closed  atomic.Bool
}

// OpenPlayback initializes the named device (empty for the system default) with a queue
// holding capacity of audio. Rendering starts on the first Play.
func OpenPlayback(name string, capacity time.Duration) (*Playback, error) {
	p := &Playback{pcm: NewRingBuffer(samplesFor(capacity))}

	// read into output sample, for output to speaker device. an underrun renders silence
	onSendFrames := func(pOutputSample, _ []byte, _ uint32) {
		n := p.pcm.ReadBytes(pOutputSample)
		clear(pOutputSample[n*bytesPerSample:])
	}

	dev, err := openDevice(malgo.Playback, name, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return nil, fmt.Errorf("error initializing playback device: %w", err)
	}
	p.dev = dev
	return p, nil
}

func (p *Playback) Write(pcm []int16) int { return p.pcm.Write(pcm) }

func (p *Playback) Buffered() time.Duration { return durationOf(p.pcm.Len()) }

func (p *Playback) Play() error {
	if p.running.Swap(true) {
		return nil
	}
	if err := p.dev.dev.Start(); err != nil {
		p.running.Store(false)
		return fmt.Errorf("error starting playback device: %w", err)
	}
	return nil
}

func (p *Playback) Pause() error {
	if !p.running.Swap(false) {
		return nil
	}
	if err := p.dev.dev.Stop(); err != nil {
		return fmt.Errorf("error pausing playback device: %w", err)
	}
	return nil
}

func (p *Playback) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.dev.close()
	return nil
}
