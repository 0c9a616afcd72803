package dsp

import (
	"math"
	"time"
)

const (
	ToneHz      = 1000
	ToneLevelDb = -12.0
	toneFade    = 10 * time.Millisecond
)

// Tone is a phase-continuous sine generator used in place of microphone input.
type Tone struct {
	step      float64
	amplitude float64
	phase     float64
}

func NewTone(freq float64, levelDb float64, sampleRate int) *Tone {
	return &Tone{
		step:      2 * math.Pi * freq / float64(sampleRate),
		amplitude: DbToLinear(levelDb),
	}
}

// Fill overwrites pcm with the next len(pcm) samples of the tone.
func (t *Tone) Fill(pcm []int16) {
	for i := range pcm {
		pcm[i] = clampSample(math.Round(math.Sin(t.phase) * t.amplitude * math.MaxInt16))
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}

// SinePCM renders a standalone tone with short fades at both ends so it starts and
// stops without a click.
func SinePCM(freq float64, d time.Duration, levelDb float64, sampleRate int) []int16 {
	samples := int(d.Seconds() * float64(sampleRate))
	fade := int(toneFade.Seconds() * float64(sampleRate))
	amplitude := DbToLinear(levelDb)
	out := make([]int16, samples)

	for i := range out {
		v := math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * amplitude
		switch {
		case i < fade:
			v *= float64(i) / float64(fade)
		case i > samples-fade:
			v *= float64(samples-i) / float64(fade)
		}
		out[i] = clampSample(math.Round(v * math.MaxInt16))
	}
	return out
}
