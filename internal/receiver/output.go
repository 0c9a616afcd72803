package receiver

import (
	"fmt"
	"sync"
	"time"

	"github.com/gregriff/lanmic/internal/audio"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/sirupsen/logrus"
)

// silenceFloor is the queued duration under which a running output is topped up with
// a silent frame. Every JitterMode rebuffers at or above it, so the top-up only runs for
// an OutputConfig whose Rebuffer is below 40 ms.
const silenceFloor = 40 * time.Millisecond

// OutputConfig is the start and rebuffer policy of an Output.
type OutputConfig struct {
	Prebuffer  time.Duration
	ForceStart time.Duration
	Rebuffer   time.Duration
}

// Output decides when the sink plays. It starts as soon as Prebuffer is queued, or after
// ForceStart if something but not enough stays queued, and pauses again when the queue
// drains below Rebuffer. The playout and silence loops both use it.
type Output struct {
	sink audio.Sink
	cfg  OutputConfig

	mu           sync.Mutex
	started      bool
	pendingSince time.Time
	silence      []int16
}

func NewOutput(sink audio.Sink, cfg OutputConfig) *Output {
	return &Output{
		sink:    sink,
		cfg:     cfg,
		silence: make([]int16, codec.FrameSamples),
	}
}

// Write queues pcm and starts the sink if the start policy allows.
func (o *Output) Write(now time.Time, pcm []int16) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n := o.sink.Write(pcm); n < len(pcm) {
		log.WithField("dropped", len(pcm)-n).Debug("output queue full")
	}
	return o.maybeStartLocked(now)
}

func (o *Output) maybeStartLocked(now time.Time) error {
	if o.started {
		return nil
	}

	buffered := o.sink.Buffered()
	if buffered <= 0 {
		o.pendingSince = time.Time{}
		return nil
	}

	forced := false
	if buffered < o.cfg.Prebuffer {
		if o.pendingSince.IsZero() {
			o.pendingSince = now
			return nil
		}
		if now.Sub(o.pendingSince) < o.cfg.ForceStart {
			return nil
		}
		forced = true
	}

	if err := o.sink.Play(); err != nil {
		return fmt.Errorf("error starting output: %w", err)
	}
	o.started = true
	o.pendingSince = time.Time{}
	log.WithFields(logrus.Fields{
		"buffered":  buffered,
		"prebuffer": o.cfg.Prebuffer,
		"forced":    forced,
	}).Info("output started")
	return nil
}

// Maintain runs the silence policy: pause and rebuffer when the queue is nearly empty,
// otherwise keep a running device fed.
func (o *Output) Maintain(now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return o.maybeStartLocked(now)
	}

	buffered := o.sink.Buffered()
	if buffered < o.cfg.Rebuffer {
		o.started = false
		o.pendingSince = time.Time{}
		log.WithField("buffered", buffered).Info("output rebuffering")
		if err := o.sink.Pause(); err != nil {
			return fmt.Errorf("error pausing output: %w", err)
		}
		return nil
	}
	if buffered < silenceFloor {
		o.sink.Write(o.silence)
	}
	return nil
}

func (o *Output) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

func (o *Output) Buffered() time.Duration { return o.sink.Buffered() }

// Stop pauses the sink and forgets the start state.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.started = false
	o.pendingSince = time.Time{}
	return o.sink.Pause()
}
