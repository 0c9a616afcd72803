package dsp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constant returns a square-ish frame whose RMS is exactly amplitude (in full-scale units).
func constant(n int, amplitude float64) []int16 {
	pcm := make([]int16, n)
	v := int16(math.Round(amplitude * fullScale))
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = v
		} else {
			pcm[i] = -v
		}
	}
	return pcm
}

func TestTargetGainDb(t *testing.T) {
	send := NewChain(SendTuning)
	recv := NewChain(ReceiveTuning)

	tests := []struct {
		name  string
		chain *Chain
		preDb float64
		want  float64
	}{
		{name: "send below no-boost floor", chain: send, preDb: -80, want: 0},
		{name: "receive below no-boost floor", chain: recv, preDb: -80, want: 0},
		{name: "send quiet is boosted", chain: send, preDb: -40, want: 16},
		{name: "send boost clamped", chain: send, preDb: -60, want: 24},
		{name: "send loud clamped to max cut", chain: send, preDb: 0, want: -12},
		{name: "receive loud clamped to max cut", chain: recv, preDb: 0, want: -18},
		{name: "at target", chain: recv, preDb: -20, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.chain.TargetGainDb(tt.preDb), 1e-9)
		})
	}
}

func TestProcessConvergesToMaxCut(t *testing.T) {
	chain := NewChain(ReceiveTuning)
	for range 500 {
		chain.Process(constant(960, 0.9), 1, true)
	}
	assert.InDelta(t, ReceiveTuning.MaxCutDb, chain.GainDb(), 1e-6)
}

func TestProcessNoBoostFloorLeavesGain(t *testing.T) {
	chain := NewChain(SendTuning)
	pre, _ := chain.Process(constant(960, DbToLinear(-80)), 1, true)
	assert.InDelta(t, -80, pre.RmsDb, 1.5)
	assert.InDelta(t, 0, chain.GainDb(), 1e-9)
}

func TestAttackFasterThanRelease(t *testing.T) {
	up := NewChain(SendTuning)
	up.Process(constant(960, DbToLinear(-40)), 1, true)
	// target +16 dB, attack 0.12
	assert.InDelta(t, 16*SendTuning.Attack, up.GainDb(), 0.05)

	down := NewChain(SendTuning)
	down.Process(constant(960, DbToLinear(-6)), 1, true)
	// target -12 dB, release 0.05
	assert.InDelta(t, -12*SendTuning.Release, down.GainDb(), 0.05)
}

func TestGate(t *testing.T) {
	chain := NewChain(ReceiveTuning)
	assert.Equal(t, 0.0, chain.Gate(-70))
	assert.InDelta(t, 0.5, chain.Gate(-55), 1e-9)
	assert.Equal(t, 1.0, chain.Gate(-20))

	pcm := constant(960, DbToLinear(-75))
	_, post := chain.Process(pcm, 1, true)
	assert.Equal(t, SilenceDb, math.Round(post.PeakDb))
	for _, s := range pcm {
		require.Zero(t, s)
	}
}

func TestProcessDisabledAppliesOnlyUserGain(t *testing.T) {
	chain := NewChain(SendTuning)
	pcm := []int16{1000, -1000, 30000, -30000}
	chain.Process(pcm, 2, false)
	assert.Equal(t, []int16{2000, -2000, math.MaxInt16, math.MinInt16}, pcm)
	assert.Zero(t, chain.GainDb())
}

func TestSoftClipBounded(t *testing.T) {
	gains := []float64{1.01, 2, 10, 1000, 1e9}
	inputs := []int16{math.MaxInt16, math.MinInt16, 16384, -16384, 1, -1, 0}

	for _, gain := range gains {
		pcm := append([]int16{}, inputs...)
		ApplyGainSoftClip(pcm, gain)
		for i, s := range pcm {
			assert.LessOrEqual(t, int(s), math.MaxInt16)
			assert.GreaterOrEqual(t, int(s), -math.MaxInt16, "gain %v sample %d", gain, i)
			if inputs[i] > 0 {
				assert.Positive(t, int(s))
			}
		}
	}
}

func TestApplyGainUnityIsNoop(t *testing.T) {
	pcm := []int16{1, 2, 3}
	ApplyGain(pcm, 1.0005)
	ApplyGainSoftClip(pcm, 1)
	assert.Equal(t, []int16{1, 2, 3}, pcm)
}

func TestPeakRms(t *testing.T) {
	peak, rms := PeakRms(constant(100, 0.5))
	assert.InDelta(t, 0.5, peak, 1e-4)
	assert.InDelta(t, 0.5, rms, 1e-4)

	peak, rms = PeakRms(nil)
	assert.Zero(t, peak)
	assert.Zero(t, rms)
	assert.InDelta(t, SilenceDb, LinearToDb(0), 1e-6)
	assert.InDelta(t, -6.0206, LinearToDb(0.5), 1e-3)
	assert.InDelta(t, 0.5, DbToLinear(LinearToDb(0.5)), 1e-6)
}

func TestMeter(t *testing.T) {
	var m Meter
	first := m.Update(0.5, 0.25)
	assert.InDelta(t, LinearToDb(0.5), first.PeakDb, 1e-9)

	louder := m.Update(1, 0.25)
	assert.InDelta(t, 0, louder.PeakDb, 1e-6)

	quieter := m.Update(0.01, 0.25)
	assert.Less(t, quieter.PeakDb, 0.0)
	assert.Greater(t, quieter.PeakDb, LinearToDb(0.01))

	silent := m.Update(0, 0)
	assert.GreaterOrEqual(t, silent.RmsDb, meterFloorDb)
}

func TestWarnings(t *testing.T) {
	w := NewWarnings(DefaultVadFloor)
	start := time.Unix(1000, 0)

	text, changed := w.Update(start, 0.1, -60)
	assert.Empty(t, text)
	assert.False(t, changed)

	text, changed = w.Update(start.Add(2*time.Second), 0.1, -60)
	assert.Equal(t, WarnLowLevel, text)
	assert.True(t, changed)

	text, changed = w.Update(start.Add(2100*time.Millisecond), 0.95, -10)
	assert.Equal(t, WarnClip, text)
	assert.True(t, changed)

	// clip indicator holds after the peak drops
	text, changed = w.Update(start.Add(2500*time.Millisecond), 0.1, -10)
	assert.Equal(t, WarnClip, text)
	assert.False(t, changed)

	text, changed = w.Update(start.Add(3200*time.Millisecond), 0.1, -10)
	assert.Empty(t, text)
	assert.True(t, changed)
}

func TestTone(t *testing.T) {
	tone := NewTone(ToneHz, ToneLevelDb, 48_000)
	a := make([]int16, 960)
	b := make([]int16, 960)
	tone.Fill(a)
	tone.Fill(b)

	peak, rms := PeakRms(append(a, b...))
	assert.InDelta(t, DbToLinear(ToneLevelDb), peak, 0.01)
	assert.InDelta(t, DbToLinear(ToneLevelDb)/math.Sqrt2, rms, 0.01)

	sine := SinePCM(ToneHz, time.Second, ToneLevelDb, 48_000)
	require.Len(t, sine, 48_000)
	assert.Zero(t, sine[0])
	assert.LessOrEqual(t, math.Abs(float64(sine[len(sine)-1])), 300.0)
}

func TestChainReset(t *testing.T) {
	chain := NewChain(ReceiveTuning)
	for range 200 {
		chain.Process(constant(960, 0.9), 1, true)
	}
	require.Less(t, chain.GainDb(), 0.0)

	chain.Reset()
	assert.Zero(t, chain.GainDb())
}
