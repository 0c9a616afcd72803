package audio

import (
	"time"

	"github.com/gen2brain/malgo"
	"github.com/gregriff/lanmic/internal/codec"
)

const (
	sampleRate  = codec.SampleRate
	numChannels = codec.NumChannels

	// denotes how many bytes per element
	AudioFormat    = malgo.FormatS16
	bytesPerSample = 2

	periodMs = 20

	// CaptureBuffer is how much unread microphone audio is held before new samples are dropped.
	CaptureBuffer = time.Second
)

// samplesFor converts a duration to a mono sample count at the engine rate.
func samplesFor(d time.Duration) int {
	return int(d * codec.SampleRate / time.Second)
}

// durationOf is the inverse of samplesFor.
func durationOf(samples int) time.Duration {
	return time.Duration(samples) * time.Second / codec.SampleRate
}
