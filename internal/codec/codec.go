// Package codec adapts a speech codec to the fixed-frame contract used by the streaming engine
// and selects, once per pipeline, whether frames travel encoded or as raw PCM.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
)

const (
	SampleRate    = 48_000
	NumChannels   = 1
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate * int(FrameDuration/time.Millisecond) / 1000
	FrameBytes    = FrameSamples * 2
)

// ErrFrameSize is returned when a caller hands over a buffer that is not exactly one frame.
var ErrFrameSize = errors.New("pcm buffer is not one frame")

// Encoder compresses one frame of PCM.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Decoder expands payloads back to exactly one frame of PCM.
type Decoder interface {
	// Decode decodes a received payload into pcm.
	Decode(payload []byte, pcm []int16) error
	// DecodeFEC reconstructs the frame preceding next from the side information carried in next.
	DecodeFEC(next []byte, pcm []int16) error
	// DecodeLost synthesizes a replacement for a frame that never arrived.
	DecodeLost(pcm []int16) error
}

// Mode selects how frames are carried on the wire.
type Mode int

const (
	ModeOpus Mode = iota
	ModePCM
)

func (m Mode) String() string {
	if m == ModePCM {
		return "pcm"
	}
	return "opus"
}

// ParseMode accepts "opus" or "pcm".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "opus":
		return ModeOpus, nil
	case "pcm", "raw":
		return ModePCM, nil
	}
	return ModeOpus, fmt.Errorf("unknown send mode %q", s)
}

// Framer turns a processed PCM frame into a packet payload of a fixed kind.
type Framer interface {
	Kind() protocol.Kind
	Frame(pcm []int16) ([]byte, error)
}

// NewFramer resolves the wire representation once, at pipeline construction.
func NewFramer(mode Mode, enc Encoder) (Framer, error) {
	if mode == ModePCM {
		return rawFramer{}, nil
	}
	if enc == nil {
		return nil, errors.New("opus mode requires an encoder")
	}
	return encodedFramer{enc: enc}, nil
}

type encodedFramer struct {
	enc Encoder
}

func (encodedFramer) Kind() protocol.Kind { return protocol.KindAudio }

func (f encodedFramer) Frame(pcm []int16) ([]byte, error) {
	return f.enc.Encode(pcm)
}

type rawFramer struct{}

func (rawFramer) Kind() protocol.Kind { return protocol.KindPcm }

func (rawFramer) Frame(pcm []int16) ([]byte, error) {
	return Int16ToBytes(pcm), nil
}

// Int16ToBytes serializes samples as little-endian 16-bit PCM.
func Int16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 fills dst from little-endian PCM bytes. A short payload leaves the
// remainder of dst silent; extra bytes are ignored. It returns the samples copied.
func BytesToInt16(src []byte, dst []int16) int {
	n := min(len(src)/2, len(dst))
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	clear(dst[n:])
	return n
}
