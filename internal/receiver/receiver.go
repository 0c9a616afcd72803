// Package receiver plays one remote microphone: it answers the sender's handshake, feeds
// arriving frames into the jitter buffer and, on its own clock, renders the scheduler's
// decisions through the signal chain to the output.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gregriff/lanmic/internal"
	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/dsp"
	"github.com/gregriff/lanmic/internal/jitter"
	"github.com/gregriff/lanmic/internal/netw"
	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "receiver")

const (
	StatsInterval    = time.Second
	statsLogInterval = 10 * time.Second
	statusInterval   = 500 * time.Millisecond
	silenceInterval  = 100 * time.Millisecond

	// a sender is connected while packets keep arriving within connectedWindow, and
	// reconnecting until reconnectWindow
	connectedWindow = time.Second
	reconnectWindow = 5 * time.Second

	errorBackoff = 200 * time.Millisecond
)

var ErrRunning = errors.New("receiver already started")

// Sample is one stats report as handed to a StatsRecorder.
type Sample struct {
	At          time.Time
	Session     uint32
	Stats       protocol.Stats
	Packets     uint64
	TargetDepth int
}

// StatsRecorder persists stats reports, e.g. to the session history.
type StatsRecorder interface {
	RecordStats(ctx context.Context, s Sample) error
}

// Config is fixed for the lifetime of a Receiver.
type Config struct {
	// Listen is the UDP address to bind, e.g. ":48750".
	Listen     string
	JitterMode JitterMode
	// ForceStart bounds how long output waits for the prebuffer; clamped to [200ms, 5s].
	ForceStart time.Duration

	Gain       float64
	Processing bool
	// VadFloorDb is the input level under which the low-level warning arms.
	VadFloorDb float64

	Events   internal.Events
	Recorder StatsRecorder
}

// Receiver runs the receive, playout, stats, status and silence loops.
type Receiver struct {
	cfg      Config
	dec      codec.Decoder
	output   *Output
	buf      *jitter.Buffer
	sched    *jitter.Scheduler
	arrivals arrivals

	gain       *internal.Float64
	processing atomic.Bool

	// unix nanos; zero when unset
	lastPacket    atomic.Int64
	suppressUntil atomic.Int64
	lastSession   atomic.Uint32
	lastSender    atomic.Pointer[net.UDPAddr]

	status        internal.StatusLatch
	hadConnection bool
	lastStatsLog  time.Time

	mu      sync.Mutex
	conn    *netw.Conn
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	stopped bool
}

// New prepares a receiver rendering to sink. dec decodes Opus frames; a stream of raw PCM
// frames needs no decoder.
func New(cfg Config, sink audio.Sink, dec codec.Decoder) (*Receiver, error) {
	cfg.ForceStart = ClampForceStart(cfg.ForceStart)
	if cfg.VadFloorDb == 0 {
		cfg.VadFloorDb = dsp.DefaultVadFloor
	}

	buf := jitter.NewBuffer()
	sched, err := jitter.NewScheduler(buf, jitter.Config{
		Depth:      jitter.DepthFor(cfg.JitterMode.Prebuffer(), codec.FrameDuration),
		ForceStart: cfg.ForceStart,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating playout scheduler: %w", err)
	}

	r := &Receiver{
		cfg:   cfg,
		dec:   dec,
		buf:   buf,
		sched: sched,
		gain:  internal.NewFloat64(cfg.Gain),
		output: NewOutput(sink, OutputConfig{
			Prebuffer:  cfg.JitterMode.Prebuffer(),
			ForceStart: cfg.ForceStart,
			Rebuffer:   cfg.JitterMode.RebufferThreshold(),
		}),
	}
	r.processing.Store(cfg.Processing)
	return r, nil
}

func (r *Receiver) SetGain(g float64)    { r.gain.Store(g) }
func (r *Receiver) SetProcessing(b bool) { r.processing.Store(b) }

// TargetDepth is the scheduler's current target, in frames.
func (r *Receiver) TargetDepth() int { return r.sched.TargetDepth() }

// LocalAddr returns the bound address, or nil before Start.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Start binds the socket and launches the loops.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrRunning
	}

	conn, err := netw.Listen(r.cfg.Listen)
	if err != nil {
		r.setStatus(internal.StatusError)
		return fmt.Errorf("error opening receiver socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.conn = conn
	r.cancel = cancel

	r.loops.Go(func() { r.receiveLoop(runCtx) })
	r.loops.Go(func() { r.playoutLoop(runCtx) })
	r.loops.Go(func() {
		internal.Every(runCtx, StatsInterval, func(now time.Time) { r.reportStats(runCtx, now) })
	})
	r.loops.Go(func() { internal.Every(runCtx, statusInterval, r.updateStatus) })
	r.loops.Go(func() { internal.Every(runCtx, silenceInterval, r.maintainOutput) })

	log.WithFields(logrus.Fields{
		"listen":      conn.LocalAddr(),
		"jitter_mode": r.cfg.JitterMode,
		"prebuffer":   r.cfg.JitterMode.Prebuffer(),
		"target":      r.sched.TargetDepth(),
	}).Info("receiver listening")
	r.setStatus(internal.StatusListening)
	return nil
}

// Stop cancels the loops, waits for them briefly, closes the socket and pauses the
// output. Safe to call twice.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil || r.stopped {
		return
	}
	r.stopped = true

	r.cancel()
	if !internal.WaitTimeout(&r.loops, internal.StopTimeout) {
		log.WithField("timeout", internal.StopTimeout).Warn("receiver loops did not exit in time")
	}
	if err := r.conn.Close(); err != nil {
		log.WithError(err).Debug("error closing receiver socket")
	}
	if err := r.output.Stop(); err != nil {
		log.WithError(err).Warn("error stopping output")
	}
	r.buf.Reset()
	r.arrivals.Reset()
	log.Info("receiver stopped")
	r.setStatus(internal.StatusIdle)
}

func (r *Receiver) setStatus(text string) {
	if r.status.Set(text) {
		log.WithField("status", text).Debug("status changed")
		r.cfg.Events.EmitStatus(text)
	}
}

func (r *Receiver) reportError(err error) {
	log.WithError(err).Warn("receive pipeline fault")
	r.setStatus(internal.StatusError)
	r.cfg.Events.EmitError(err)
}

func (r *Receiver) receiveLoop(ctx context.Context) {
	for ctx.Err() == nil {
		pkt, from, err := r.conn.ReadPacket()
		switch {
		case errors.Is(err, netw.ErrNoPacket):
			continue
		case err != nil:
			if ctx.Err() != nil || netw.IsClosed(err) {
				return
			}
			r.reportError(err)
			internal.Sleep(ctx, errorBackoff)
			continue
		}

		now := time.Now()
		r.lastPacket.Store(now.UnixNano())
		r.lastSender.Store(from)

		switch pkt.Kind {
		case protocol.KindHello, protocol.KindKeepAlive:
			// Accept is idempotent, so every Hello and KeepAlive gets one
			if err := r.conn.SendTo(protocol.BuildAccept(pkt.SessionID), from); err != nil {
				log.WithError(err).Debug("error sending accept")
			}
		case protocol.KindAudio, protocol.KindPcm:
			if prev := r.lastSession.Swap(pkt.SessionID); prev != pkt.SessionID {
				log.WithFields(logrus.Fields{"session": pkt.SessionID, "from": from}).Info("sender session started")
			}
			r.arrivals.Observe(now, pkt.SessionID, pkt.Sequence, len(pkt.Payload))
			r.buf.Insert(now, pkt.SessionID, pkt.Sequence, jitter.Entry{Kind: pkt.Kind, Payload: pkt.Payload})
		}
	}
}

func (r *Receiver) reportStats(ctx context.Context, now time.Time) {
	stats := r.arrivals.Summary(r.sched.Misses(), r.output.Buffered())
	received := r.arrivals.Received()
	r.cfg.Events.EmitStats(stats)

	if now.Sub(r.lastStatsLog) >= statsLogInterval {
		log.WithFields(logrus.Fields{
			"packets": received,
			"loss":    stats.LossPercent,
			"jitter":  stats.JitterMs,
			"delay":   stats.DelayMs,
			"target":  r.sched.TargetDepth(),
		}).Info("receiver stats")
		r.lastStatsLog = now
	}

	if addr := r.lastSender.Load(); addr != nil {
		if err := r.conn.SendTo(protocol.BuildStats(stats), addr); err != nil {
			log.WithError(err).Debug("error sending stats")
		}
	}

	if r.cfg.Recorder != nil && received > 0 {
		err := r.cfg.Recorder.RecordStats(ctx, Sample{
			At:          now,
			Session:     r.lastSession.Load(),
			Stats:       stats,
			Packets:     received,
			TargetDepth: r.sched.TargetDepth(),
		})
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("error recording stats")
		}
	}
}

func (r *Receiver) updateStatus(now time.Time) {
	last := r.lastPacket.Load()
	if last == 0 {
		r.setStatus(internal.StatusListening)
		return
	}

	elapsed := now.Sub(time.Unix(0, last))
	switch {
	case elapsed <= connectedWindow:
		r.hadConnection = true
		r.setStatus(internal.StatusConnected)
	case elapsed <= reconnectWindow && r.hadConnection:
		r.setStatus(internal.StatusReconnecting)
	default:
		r.setStatus(internal.StatusListening)
	}
}

func (r *Receiver) maintainOutput(now time.Time) {
	if err := r.output.Maintain(now); err != nil {
		r.reportError(err)
	}
}
