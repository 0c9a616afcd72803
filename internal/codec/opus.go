package codec

import (
	"fmt"
	"strings"

	"gopkg.in/hraban/opus.v2"
)

const (
	// opusBufferSize is the largest packet libopus recommends for a single frame.
	opusBufferSize = 4000

	// expected loss the encoder provisions in-band FEC for
	opusPacketLossPerc = 20
)

// Quality picks bitrate and complexity for the Opus encoder.
type Quality int

const (
	QualityLow Quality = iota
	QualityStandard
	QualityHigh
	QualityUltra
)

// ParseQuality accepts low, standard, high or ultra.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return QualityLow, nil
	case "", "standard":
		return QualityStandard, nil
	case "high":
		return QualityHigh, nil
	case "ultra":
		return QualityUltra, nil
	}
	return QualityStandard, fmt.Errorf("unknown quality %q", s)
}

// Settings returns the bitrate (bits/s) and complexity for q.
func (q Quality) Settings() (bitrate, complexity int) {
	switch q {
	case QualityLow:
		return 16_000, 3
	case QualityHigh:
		return 64_000, 8
	case QualityUltra:
		return 128_000, 10
	default:
		return 32_000, 5
	}
}

// OpusEncoder encodes mono 48 kHz voice frames with in-band FEC enabled.
type OpusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

func NewOpusEncoder(quality Quality) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(SampleRate, NumChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	bitrate, complexity := quality.Settings()
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("error setting bitrate: %w", err)
	}
	if err := enc.SetComplexity(complexity); err != nil {
		return nil, fmt.Errorf("error setting complexity: %w", err)
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, fmt.Errorf("error enabling fec: %w", err)
	}
	if err := enc.SetPacketLossPerc(opusPacketLossPerc); err != nil {
		return nil, fmt.Errorf("error setting expected loss: %w", err)
	}
	// every frame is sent, silent or not; a suppressed frame looks like loss to the receiver
	if err := enc.SetDTX(false); err != nil {
		return nil, fmt.Errorf("error disabling dtx: %w", err)
	}

	return &OpusEncoder{enc: enc, buf: make([]byte, opusBufferSize)}, nil
}

func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, ErrFrameSize
	}
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// OpusDecoder decodes frames and conceals loss with FEC or libopus PLC.
type OpusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(SampleRate, NumChannels)
	if err != nil {
		return nil, fmt.Errorf("decoder error: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

func (d *OpusDecoder) Decode(payload []byte, pcm []int16) error {
	if len(pcm) != FrameSamples {
		return ErrFrameSize
	}
	n, err := d.dec.Decode(payload, pcm)
	if err != nil {
		return fmt.Errorf("opus decode: %w", err)
	}
	clear(pcm[n:])
	return nil
}

func (d *OpusDecoder) DecodeFEC(next []byte, pcm []int16) error {
	if len(pcm) != FrameSamples {
		return ErrFrameSize
	}
	if err := d.dec.DecodeFEC(next, pcm); err != nil {
		return fmt.Errorf("opus fec decode: %w", err)
	}
	return nil
}

func (d *OpusDecoder) DecodeLost(pcm []int16) error {
	if len(pcm) != FrameSamples {
		return ErrFrameSize
	}
	if err := d.dec.DecodePLC(pcm); err != nil {
		return fmt.Errorf("opus plc: %w", err)
	}
	return nil
}
