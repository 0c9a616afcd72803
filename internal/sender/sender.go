// Package sender streams one microphone to a receiver: capture, signal chain, framing and
// transmission at a fixed cadence, plus the handshake that tells it whether anyone listens.
package sender

import (
	"context"
	"errors"
	"fmt"
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

var log = logrus.WithField("component", "sender")

const (
	errorBackoff  = 200 * time.Millisecond
	meterInterval = 200 * time.Millisecond
)

var (
	ErrCaptureStopped = errors.New("microphone stopped; reconnect the device and restart")
	ErrRunning        = errors.New("sender already started")
)

// Config is fixed for the lifetime of a Sender.
type Config struct {
	// Target is the receiver's "host:port".
	Target string
	Mode   codec.Mode

	Gain       float64
	Processing bool
	TestTone   bool

	Events internal.Events
}

// Sender runs the send loop and the control loop. Gain, processing and the test tone may
// be changed while running.
type Sender struct {
	cfg    Config
	source audio.Source
	framer codec.Framer

	gain       *internal.Float64
	processing atomic.Bool
	testTone   atomic.Bool

	status internal.StatusLatch

	mu      sync.Mutex
	conn    *netw.Conn
	link    *Connection
	cancel  context.CancelFunc
	done    <-chan struct{}
	loops   sync.WaitGroup
	stopped bool
}

// New prepares a sender reading from source. enc may be nil in PCM mode.
func New(cfg Config, source audio.Source, enc codec.Encoder) (*Sender, error) {
	framer, err := codec.NewFramer(cfg.Mode, enc)
	if err != nil {
		return nil, fmt.Errorf("error creating framer: %w", err)
	}

	s := &Sender{
		cfg:    cfg,
		source: source,
		framer: framer,
		gain:   internal.NewFloat64(cfg.Gain),
	}
	s.processing.Store(cfg.Processing)
	s.testTone.Store(cfg.TestTone)
	return s, nil
}

func (s *Sender) SetGain(g float64)    { s.gain.Store(g) }
func (s *Sender) SetProcessing(b bool) { s.processing.Store(b) }
func (s *Sender) SetTestTone(b bool)   { s.testTone.Store(b) }

// Session returns the id of the running session, or 0 before Start.
func (s *Sender) Session() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return 0
	}
	return s.link.Session()
}

// Start opens the socket and launches the loops with a fresh session id.
func (s *Sender) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	conn, err := netw.Dial(s.cfg.Target)
	if err != nil {
		s.setStatus(internal.StatusError)
		return fmt.Errorf("error opening sender socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.link = NewConnection(protocol.NewSessionID())
	s.cancel = cancel
	s.done = runCtx.Done()

	s.loops.Go(func() { s.sendLoop(runCtx) })
	s.loops.Go(func() { s.controlLoop(runCtx, cancel) })

	log.WithFields(logrus.Fields{
		"target":  conn.Peer(),
		"session": s.link.Session(),
		"mode":    s.cfg.Mode,
	}).Info("sender started")
	s.setStatus(internal.StatusConnecting)
	return nil
}

// Done is closed once the sender stops, including when the capture device goes away.
func (s *Sender) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop cancels the loops, waits for them briefly and closes the socket. Safe to call twice.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || s.stopped {
		return
	}
	s.stopped = true

	s.cancel()
	if !internal.WaitTimeout(&s.loops, internal.StopTimeout) {
		log.WithField("timeout", internal.StopTimeout).Warn("sender loops did not exit in time")
	}
	if err := s.conn.Close(); err != nil {
		log.WithError(err).Debug("error closing sender socket")
	}
	log.Info("sender stopped")
	s.setStatus(internal.StatusIdle)
}

func (s *Sender) setStatus(text string) {
	if s.status.Set(text) {
		log.WithField("status", text).Debug("status changed")
		s.cfg.Events.EmitStatus(text)
	}
}

func (s *Sender) reportError(err error) {
	log.WithError(err).Warn("send pipeline fault")
	s.setStatus(internal.StatusError)
	s.cfg.Events.EmitError(err)
}

// sendLoop transmits one frame per tick, every tick, whatever the signal level.
func (s *Sender) sendLoop(ctx context.Context) {
	var (
		pcm       = make([]int16, codec.FrameSamples)
		chain     = dsp.NewChain(dsp.SendTuning)
		tone      = dsp.NewTone(dsp.ToneHz, dsp.ToneLevelDb, codec.SampleRate)
		pacer     = jitter.NewPacer(codec.FrameDuration)
		sequence  uint32
		lastMeter time.Time
	)
	pacer.Reset(time.Now())

	for {
		if !internal.Sleep(ctx, pacer.Next(time.Now())) {
			return
		}
		now := time.Now()

		if s.testTone.Load() {
			tone.Fill(pcm)
		} else {
			n := s.source.Read(pcm)
			clear(pcm[n:])
		}

		pre, post := chain.Process(pcm, s.gain.Load(), s.processing.Load())
		if now.Sub(lastMeter) >= meterInterval {
			s.cfg.Events.EmitInputLevel(pre)
			s.cfg.Events.EmitOutputLevel(post)
			lastMeter = now
		}

		if err := s.transmit(pcm, sequence); err != nil {
			s.reportError(err)
			if !internal.Sleep(ctx, errorBackoff) {
				return
			}
			pacer.Reset(time.Now())
			continue
		}
		sequence++
		s.setStatus(s.link.state())

		if control := s.link.Due(now); control != nil {
			if err := s.conn.Send(control); err != nil {
				log.WithError(err).Debug("error sending control packet")
			}
		}
	}
}

func (s *Sender) transmit(pcm []int16, sequence uint32) error {
	payload, err := s.framer.Frame(pcm)
	if err != nil {
		return fmt.Errorf("error framing audio: %w", err)
	}
	return s.conn.Send(protocol.Build(s.framer.Kind(), s.link.Session(), sequence, payload))
}

// controlLoop reads Accepts and receiver Stats, and watches liveness.
func (s *Sender) controlLoop(ctx context.Context, cancel context.CancelFunc) {
	for ctx.Err() == nil {
		select {
		case <-s.source.Stopped():
			s.reportError(ErrCaptureStopped)
			cancel()
			return
		default:
		}

		pkt, _, err := s.conn.ReadPacket()
		now := time.Now()
		if s.link.Expire(now) {
			log.WithField("timeout", AcceptTimeout).Info("receiver stopped answering")
			s.setStatus(s.link.state())
		}

		switch {
		case errors.Is(err, netw.ErrNoPacket):
			continue
		case err != nil:
			if ctx.Err() != nil || netw.IsClosed(err) {
				return
			}
			s.reportError(err)
			internal.Sleep(ctx, errorBackoff)
			continue
		}

		switch pkt.Kind {
		case protocol.KindAccept:
			if s.link.OnAccept(now, pkt.SessionID) {
				log.WithField("session", pkt.SessionID).Info("receiver accepted")
				s.setStatus(s.link.state())
			}
		case protocol.KindStats:
			if stats, ok := protocol.ParseStats(pkt.Payload); ok {
				s.cfg.Events.EmitStats(stats)
			}
		}
	}
}
