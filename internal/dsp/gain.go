// Package dsp holds the per-frame signal chain: fixed gain, automatic gain control with a
// noise gate and soft clipping, and level metering for display and warnings.
package dsp

import (
	"math"
)

const (
	fullScale = 32768.0
	epsilon   = 1e-9

	// SilenceDb is the floor reported for digital silence.
	SilenceDb = -180.0
)

// Level is a peak/RMS pair in dBFS.
type Level struct {
	PeakDb float64
	RmsDb  float64
}

// DbToLinear converts decibels to an amplitude ratio.
func DbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDb converts an amplitude ratio to decibels.
func LinearToDb(linear float64) float64 {
	return 20 * math.Log10(linear+epsilon)
}

// PeakRms returns the peak and RMS of pcm normalized to full scale (0..1).
func PeakRms(pcm []int16) (peak, rms float64) {
	if len(pcm) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / fullScale
		a := math.Abs(v)
		if a > peak {
			peak = a
		}
		sum += v * v
	}
	return peak, math.Sqrt(sum / float64(len(pcm)))
}

// LevelOf is PeakRms expressed in dBFS.
func LevelOf(pcm []int16) Level {
	peak, rms := PeakRms(pcm)
	return Level{PeakDb: LinearToDb(peak), RmsDb: LinearToDb(rms)}
}

// ApplyGain multiplies pcm by gain with hard clamping at the sample range.
func ApplyGain(pcm []int16, gain float64) {
	if math.Abs(gain-1) < 0.001 {
		return
	}
	for i, s := range pcm {
		pcm[i] = clampSample(math.Round(float64(s) * gain))
	}
}

// ApplyGainSoftClip multiplies pcm by gain through a tanh saturation, so overs bend into
// the sample range instead of being chopped off.
func ApplyGainSoftClip(pcm []int16, gain float64) {
	if math.Abs(gain-1) < 0.001 {
		return
	}
	for i, s := range pcm {
		x := float64(s) / fullScale * gain
		pcm[i] = clampSample(math.Round(math.Tanh(x) * math.MaxInt16))
	}
}

func clampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
