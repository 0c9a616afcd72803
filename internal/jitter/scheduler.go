package jitter

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "jitter")

const (
	adaptWindow    = 50
	raiseMissRate  = 0.02
	doubleMissRate = 0.10
	lowerHeadroom  = 6
	resyncFactor   = 3
	minDepthFloor  = 3
	depthBelowBase = 2
	depthAboveBase = 8

	DefaultSilence    = 2 * time.Second
	DefaultForceStart = time.Second
)

// State is the playout state.
type State int

const (
	Uninitialized State = iota
	Buffering
	Playing
)

func (s State) String() string {
	switch s {
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	default:
		return "uninitialized"
	}
}

// Action is what the output should do for one tick.
type Action int

const (
	// Idle means nothing is due yet; the caller polls again shortly.
	Idle Action = iota
	// Play renders Entry, the frame for Sequence.
	Play
	// ConcealFEC rebuilds the missing Sequence from side information in Entry, the next frame.
	ConcealFEC
	// ConcealSilence renders a frame of zeros (raw PCM streams).
	ConcealSilence
	// ConcealPLC asks the codec to extrapolate the missing frame.
	ConcealPLC
)

func (a Action) String() string {
	switch a {
	case Play:
		return "play"
	case ConcealFEC:
		return "conceal-fec"
	case ConcealSilence:
		return "conceal-silence"
	case ConcealPLC:
		return "conceal-plc"
	default:
		return "idle"
	}
}

// Concealed reports whether the action stands in for a missing frame.
func (a Action) Concealed() bool {
	return a == ConcealFEC || a == ConcealSilence || a == ConcealPLC
}

// Decision is the outcome of one tick.
type Decision struct {
	Action   Action
	Sequence uint32
	Entry    Entry

	// Started is set on the tick that leaves buffering; the caller re-anchors its cadence.
	Started bool
	// Resynced is set when the backlog forced a jump to the oldest buffered frame.
	Resynced bool
	Backlog  int
}

// Depth bounds the target number of buffered frames.
type Depth struct {
	Base int
	Min  int
	Max  int
}

// DepthFor derives depth bounds from a prebuffer duration.
func DepthFor(prebuffer, frame time.Duration) Depth {
	base := max(minDepthFloor, int(prebuffer/frame))
	return Depth{
		Base: base,
		Min:  max(minDepthFloor, base-depthBelowBase),
		Max:  base + depthAboveBase,
	}
}

func (d Depth) validate() error {
	if d.Min < 1 || d.Min > d.Base || d.Base > d.Max {
		return fmt.Errorf("invalid jitter depth min=%d base=%d max=%d", d.Min, d.Base, d.Max)
	}
	return nil
}

// Config tunes a Scheduler.
type Config struct {
	Depth Depth
	// ForceStart begins playback on whatever is buffered once buffering has lasted this long.
	ForceStart time.Duration
	// SilenceTimeout tears the stream down when nothing arrives for this long.
	SilenceTimeout time.Duration
}

// Scheduler owns the playout state. Tick is called only from the playout loop; the
// counters may be read from anywhere.
type Scheduler struct {
	buf *Buffer
	cfg Config

	state          State
	epoch          uint64
	next           uint32
	bufferingSince time.Time
	target         int
	windowTicks    int
	windowMisses   int

	hits   atomic.Uint64
	misses atomic.Uint64
	depth  atomic.Int64
}

func NewScheduler(buf *Buffer, cfg Config) (*Scheduler, error) {
	if err := cfg.Depth.validate(); err != nil {
		return nil, err
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilence
	}
	if cfg.ForceStart <= 0 {
		cfg.ForceStart = DefaultForceStart
	}

	s := &Scheduler{buf: buf, cfg: cfg}
	s.reset(buf.snapshot().epoch)
	return s, nil
}

func (s *Scheduler) State() State { return s.state }

// Next returns the sequence the next playing tick will render.
func (s *Scheduler) Next() uint32 { return s.next }

// TargetDepth returns the current target; safe from any goroutine.
func (s *Scheduler) TargetDepth() int { return int(s.depth.Load()) }

// Hits and Misses count frames played and concealed since construction.
func (s *Scheduler) Hits() uint64   { return s.hits.Load() }
func (s *Scheduler) Misses() uint64 { return s.misses.Load() }

func (s *Scheduler) reset(epoch uint64) {
	s.state = Uninitialized
	s.epoch = epoch
	s.next = 0
	s.bufferingSince = time.Time{}
	s.setTarget(s.cfg.Depth.Base)
	s.windowTicks, s.windowMisses = 0, 0
}

func (s *Scheduler) setTarget(n int) {
	s.target = n
	s.depth.Store(int64(n))
}

// Tick advances playout by at most one frame.
func (s *Scheduler) Tick(now time.Time) Decision {
	if s.buf.ResetIfStale(now, s.cfg.SilenceTimeout) {
		log.WithField("timeout", s.cfg.SilenceTimeout).Info("stream went silent, playout reset")
	}

	snap := s.buf.snapshot()
	if snap.epoch != s.epoch {
		s.reset(snap.epoch)
	}

	var d Decision
	switch s.state {
	case Uninitialized:
		if !snap.started {
			return Decision{Action: Idle}
		}
		s.state = Buffering
		s.next = snap.origin
		s.bufferingSince = snap.originAt
		fallthrough

	case Buffering:
		enough := snap.count >= s.target
		tooLong := snap.count > 0 && now.Sub(s.bufferingSince) >= s.cfg.ForceStart
		if !enough && !tooLong {
			return Decision{Action: Idle, Backlog: snap.count}
		}
		if oldest, ok := s.buf.oldestIn(s.epoch); ok {
			s.next = oldest
		}
		s.state = Playing
		d.Started = true
		log.WithFields(logrus.Fields{
			"target":   s.target,
			"buffered": snap.count,
			"forced":   !enough,
			"sequence": s.next,
		}).Info("playout started")

	case Playing:
		if snap.count > s.target*resyncFactor {
			if oldest, ok := s.buf.oldestIn(s.epoch); ok && oldest != s.next {
				log.WithFields(logrus.Fields{
					"from":     s.next,
					"to":       oldest,
					"buffered": snap.count,
				}).Info("playout resync")
				s.next = oldest
				d.Resynced = true
			}
		}
	}

	s.render(&d, snap.lastKind)
	s.next++
	s.buf.advanceIn(s.epoch, s.next)
	d.Backlog = s.buf.Len()
	s.adapt(d.Action == Play, d.Backlog)
	return d
}

func (s *Scheduler) render(d *Decision, lastKind protocol.Kind) {
	d.Sequence = s.next
	if e, ok := s.buf.takeIn(s.epoch, s.next); ok {
		d.Action, d.Entry = Play, e
		s.hits.Add(1)
		return
	}

	s.misses.Add(1)
	if e, ok := s.buf.peekIn(s.epoch, s.next+1); ok && e.Kind == protocol.KindAudio {
		d.Action, d.Entry = ConcealFEC, e
		return
	}
	if lastKind == protocol.KindPcm {
		d.Action = ConcealSilence
		return
	}
	d.Action = ConcealPLC
}

// adapt steers the target depth toward the smallest value that keeps misses negligible.
func (s *Scheduler) adapt(hit bool, backlog int) {
	s.windowTicks++
	if !hit {
		s.windowMisses++
	}
	if s.windowTicks < adaptWindow {
		return
	}

	missRate := float64(s.windowMisses) / float64(s.windowTicks)
	switch {
	case missRate > raiseMissRate && s.target < s.cfg.Depth.Max:
		step := 1
		if missRate > doubleMissRate {
			step = 2
		}
		s.setTarget(min(s.target+step, s.cfg.Depth.Max))
		log.WithFields(logrus.Fields{"target": s.target, "miss_rate": missRate}).Info("jitter target raised")
	case s.windowMisses == 0 && backlog > s.target+lowerHeadroom && s.target > s.cfg.Depth.Min:
		s.setTarget(max(s.target-1, s.cfg.Depth.Min))
		log.WithFields(logrus.Fields{"target": s.target, "buffered": backlog}).Info("jitter target lowered")
	}
	s.windowTicks, s.windowMisses = 0, 0
}
