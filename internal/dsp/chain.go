package dsp

// Tuning holds the AGC and noise gate constants of one direction.
type Tuning struct {
	TargetRmsDb    float64
	NoBoostBelowDb float64
	MaxBoostDb     float64
	MaxCutDb       float64
	Attack         float64
	Release        float64
	GateFloorDb    float64
	GateRangeDb    float64
}

// SendTuning lifts quiet microphones more gently and gates lower than the receive side.
var SendTuning = Tuning{
	TargetRmsDb:    -24,
	NoBoostBelowDb: -65,
	MaxBoostDb:     24,
	MaxCutDb:       -12,
	Attack:         0.12,
	Release:        0.05,
	GateFloorDb:    -65,
	GateRangeDb:    8,
}

var ReceiveTuning = Tuning{
	TargetRmsDb:    -20,
	NoBoostBelowDb: -50,
	MaxBoostDb:     24,
	MaxCutDb:       -18,
	Attack:         0.25,
	Release:        0.08,
	GateFloorDb:    -60,
	GateRangeDb:    10,
}

// Chain is the signal chain of one direction. Its only state is the smoothed AGC gain,
// so a sender and a receiver each own their own Chain. Not safe for concurrent use.
type Chain struct {
	tuning Tuning
	gainDb float64
}

func NewChain(t Tuning) *Chain {
	return &Chain{tuning: t}
}

// GainDb returns the current smoothed AGC gain.
func (c *Chain) GainDb() float64 {
	return c.gainDb
}

// Reset returns the AGC gain to 0 dB.
func (c *Chain) Reset() {
	c.gainDb = 0
}

// TargetGainDb is the gain the AGC steers toward for a frame at preRmsDb.
func (c *Chain) TargetGainDb(preRmsDb float64) float64 {
	if preRmsDb < c.tuning.NoBoostBelowDb {
		return 0
	}
	return clamp(c.tuning.TargetRmsDb-preRmsDb, c.tuning.MaxCutDb, c.tuning.MaxBoostDb)
}

// Gate ramps linearly from 0 at the gate floor to 1 at floor+range.
func (c *Chain) Gate(preRmsDb float64) float64 {
	if c.tuning.GateRangeDb <= 0 {
		if preRmsDb < c.tuning.GateFloorDb {
			return 0
		}
		return 1
	}
	return clamp((preRmsDb-c.tuning.GateFloorDb)/c.tuning.GateRangeDb, 0, 1)
}

// Process runs one frame through the chain in place and returns the levels measured
// before and after. With processing disabled only userGain is applied, hard clamped.
func (c *Chain) Process(pcm []int16, userGain float64, enabled bool) (pre, post Level) {
	pre = LevelOf(pcm)
	if !enabled {
		ApplyGain(pcm, userGain)
		return pre, LevelOf(pcm)
	}

	target := c.TargetGainDb(pre.RmsDb)
	rate := c.tuning.Release
	if target > c.gainDb {
		rate = c.tuning.Attack
	}
	c.gainDb = lerp(c.gainDb, target, rate)

	gain := DbToLinear(c.gainDb) * userGain * c.Gate(pre.RmsDb)
	ApplyGainSoftClip(pcm, gain)
	return pre, LevelOf(pcm)
}
