package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gregriff/lanmic/internal"
	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/dsp"
	"github.com/gregriff/lanmic/internal/jitter"
	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	meterInterval = 200 * time.Millisecond

	checkToneLength = time.Second
	// network audio stays muted a little longer than the tone lasts
	checkToneMute = 1100 * time.Millisecond
)

var errNoDecoder = errors.New("encoded frame but no decoder")

// playout is the state owned by the playout loop.
type playout struct {
	pcm       []int16
	chain     *dsp.Chain
	meter     dsp.Meter
	warnings  *dsp.Warnings
	lastMeter time.Time
}

func (r *Receiver) playoutLoop(ctx context.Context) {
	p := &playout{
		pcm:      make([]int16, codec.FrameSamples),
		chain:    dsp.NewChain(dsp.ReceiveTuning),
		warnings: dsp.NewWarnings(r.cfg.VadFloorDb),
	}
	pacer := jitter.NewPacer(codec.FrameDuration)
	pacer.Reset(time.Now())

	for {
		if !internal.Sleep(ctx, pacer.Next(time.Now())) {
			return
		}
		now := time.Now()

		d := r.sched.Tick(now)
		if d.Action == jitter.Idle {
			continue
		}
		if d.Started {
			// a new stream starts from unity AGC gain
			pacer.Reset(now)
			p.chain.Reset()
		}

		r.render(d, p.pcm)
		if now.UnixNano() < r.suppressUntil.Load() {
			continue
		}
		r.play(now, p)
	}
}

// render fills pcm with the frame a decision calls for. Decode faults render silence.
func (r *Receiver) render(d jitter.Decision, pcm []int16) {
	var err error
	switch d.Action {
	case jitter.Play:
		if d.Entry.Kind == protocol.KindPcm {
			codec.BytesToInt16(d.Entry.Payload, pcm)
			return
		}
		err = r.decode(func(dec codec.Decoder) error { return dec.Decode(d.Entry.Payload, pcm) })
	case jitter.ConcealFEC:
		err = r.decode(func(dec codec.Decoder) error { return dec.DecodeFEC(d.Entry.Payload, pcm) })
	case jitter.ConcealPLC:
		err = r.decode(func(dec codec.Decoder) error { return dec.DecodeLost(pcm) })
	default:
		clear(pcm)
		return
	}

	if err != nil {
		clear(pcm)
		log.WithError(err).WithFields(logrus.Fields{
			"sequence": d.Sequence,
			"action":   d.Action,
		}).Debug("decode failed, rendering silence")
	}
}

func (r *Receiver) decode(fn func(codec.Decoder) error) error {
	if r.dec == nil {
		return errNoDecoder
	}
	return fn(r.dec)
}

// play meters the decoded frame, runs the receive chain over it and queues it for output.
func (r *Receiver) play(now time.Time, p *playout) {
	peak, rms := dsp.PeakRms(p.pcm)
	in := p.meter.Update(peak, rms)
	if text, changed := p.warnings.Update(now, peak, in.RmsDb); changed {
		log.WithField("warning", text).Debug("warning changed")
		r.cfg.Events.EmitWarning(text)
	}

	_, out := p.chain.Process(p.pcm, r.gain.Load(), r.processing.Load())
	if now.Sub(p.lastMeter) >= meterInterval {
		r.cfg.Events.EmitInputLevel(in)
		r.cfg.Events.EmitOutputLevel(out)
		p.lastMeter = now
	}

	if err := r.output.Write(now, p.pcm); err != nil {
		r.reportError(err)
	}
}

// PlayCheckTone queues a one second 1 kHz tone on the output and mutes network audio
// while it plays.
func (r *Receiver) PlayCheckTone() error {
	now := time.Now()
	r.suppressUntil.Store(now.Add(checkToneMute).UnixNano())

	tone := dsp.SinePCM(dsp.ToneHz, checkToneLength, dsp.ToneLevelDb, codec.SampleRate)
	if err := r.output.Write(now, tone); err != nil {
		return fmt.Errorf("error playing check tone: %w", err)
	}
	log.Info("check tone queued")
	return nil
}

// CheckLoopback plays the check tone while listening on probe, typically a loopback
// capture of the output device, and reports whether the tone came back above the VAD floor.
func (r *Receiver) CheckLoopback(ctx context.Context, probe audio.Source) (bool, error) {
	if err := r.PlayCheckTone(); err != nil {
		return false, err
	}

	loudest := dsp.SilenceDb
	chunk := make([]int16, codec.FrameSamples)
	deadline := time.Now().Add(checkToneMute)
	for time.Now().Before(deadline) {
		if !internal.Sleep(ctx, codec.FrameDuration) {
			return false, ctx.Err()
		}
		for {
			n := probe.Read(chunk)
			if n == 0 {
				break
			}
			_, rms := dsp.PeakRms(chunk[:n])
			loudest = max(loudest, dsp.LinearToDb(rms))
		}
	}

	pass := loudest >= r.cfg.VadFloorDb
	log.WithFields(logrus.Fields{"loudest_db": loudest, "pass": pass}).Info("loopback check finished")
	return pass, nil
}
