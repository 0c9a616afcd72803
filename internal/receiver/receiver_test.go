package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gregriff/lanmic/internal"
	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/dsp"
	"github.com/gregriff/lanmic/internal/jitter"
	"github.com/gregriff/lanmic/internal/netw"
	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecoder marks its output so tests can tell which path produced a frame.
type fakeDecoder struct{}

func fill(pcm []int16, v int16) {
	for i := range pcm {
		pcm[i] = v
	}
}

func (fakeDecoder) Decode(payload []byte, pcm []int16) error {
	if len(payload) == 0 {
		return errors.New("empty payload")
	}
	fill(pcm, int16(payload[0])*100)
	return nil
}

func (fakeDecoder) DecodeFEC(_ []byte, pcm []int16) error {
	fill(pcm, 7)
	return nil
}

func (fakeDecoder) DecodeLost(pcm []int16) error {
	fill(pcm, 5)
	return nil
}

func newTestReceiver(t *testing.T, cfg Config, dec codec.Decoder) (*Receiver, *fakeSink) {
	t.Helper()
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	sink := &fakeSink{}
	r, err := New(cfg, sink, dec)
	require.NoError(t, err)
	return r, sink
}

func TestRender(t *testing.T) {
	r, _ := newTestReceiver(t, Config{}, fakeDecoder{})
	audioEntry := jitter.Entry{Kind: protocol.KindAudio, Payload: []byte{3}}

	tests := []struct {
		name     string
		decision jitter.Decision
		want     int16
	}{
		{name: "encoded frame", decision: jitter.Decision{Action: jitter.Play, Entry: audioEntry}, want: 300},
		{name: "fec from next frame", decision: jitter.Decision{Action: jitter.ConcealFEC, Entry: audioEntry}, want: 7},
		{name: "plc", decision: jitter.Decision{Action: jitter.ConcealPLC}, want: 5},
		{name: "silence", decision: jitter.Decision{Action: jitter.ConcealSilence}, want: 0},
		{name: "decode fault is silence", decision: jitter.Decision{Action: jitter.Play, Entry: jitter.Entry{Kind: protocol.KindAudio}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := frame(-1)
			r.render(tt.decision, pcm)
			assert.Equal(t, frame(tt.want), pcm)
		})
	}

	t.Run("raw pcm", func(t *testing.T) {
		pcm := frame(-1)
		payload := codec.Int16ToBytes([]int16{1, 2, 3})
		r.render(jitter.Decision{Action: jitter.Play, Entry: jitter.Entry{Kind: protocol.KindPcm, Payload: payload}}, pcm)
		assert.Equal(t, []int16{1, 2, 3, 0}, pcm[:4])
	})

	t.Run("no decoder", func(t *testing.T) {
		bare, _ := newTestReceiver(t, Config{}, nil)
		pcm := frame(-1)
		bare.render(jitter.Decision{Action: jitter.ConcealPLC}, pcm)
		assert.Equal(t, frame(0), pcm)
	})
}

func TestArrivalJitter(t *testing.T) {
	var a arrivals
	a.Observe(t0, 1, 0, 10)
	a.Observe(t0.Add(20*time.Millisecond), 1, 1, 10)
	assert.Equal(t, 0, a.Summary(0, 0).JitterMs)

	// 16 ms late: one sixteenth of the deviation
	a.Observe(t0.Add(56*time.Millisecond), 1, 2, 10)
	a.mu.Lock()
	assert.InDelta(t, 1.0, a.jitterMs, 1e-9)
	a.mu.Unlock()

	// a new sender session does not register as a transit jump
	a.Observe(t0.Add(time.Hour), 2, 5000, 10)
	a.mu.Lock()
	assert.InDelta(t, 1.0, a.jitterMs, 1e-9)
	a.mu.Unlock()
	assert.Equal(t, uint64(4), a.Received())
}

func TestArrivalSummary(t *testing.T) {
	var a arrivals
	for seq := range uint32(9) {
		a.Observe(t0.Add(time.Duration(seq)*codec.FrameDuration), 1, seq, 10)
	}
	s := a.Summary(1, 140*time.Millisecond)
	assert.Equal(t, 10, s.LossPercent)
	assert.Equal(t, 140, s.DelayMs)

	a.Reset()
	assert.Equal(t, protocol.Stats{}, a.Summary(0, 0))
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []Sample
}

func (f *fakeRecorder) RecordStats(_ context.Context, s Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeRecorder) first() (Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.samples) == 0 {
		return Sample{}, false
	}
	return f.samples[0], true
}

type eventLog struct {
	mu       sync.Mutex
	statuses []string
	stats    int
}

func (e *eventLog) events() internal.Events {
	return internal.Events{
		Status: func(s string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.statuses = append(e.statuses, s)
		},
		Stats: func(protocol.Stats) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.stats++
		},
	}
}

func (e *eventLog) has(status string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.statuses {
		if s == status {
			return true
		}
	}
	return false
}

// readKind reads from c until a packet of kind arrives or the attempts run out.
func readKind(t *testing.T, c *netw.Conn, kind protocol.Kind, attempts int) (protocol.Packet, bool) {
	t.Helper()
	for range attempts {
		pkt, _, err := c.ReadPacket()
		if errors.Is(err, netw.ErrNoPacket) {
			continue
		}
		require.NoError(t, err)
		if pkt.Kind == kind {
			return pkt, true
		}
	}
	return protocol.Packet{}, false
}

func TestReceiverEndToEnd(t *testing.T) {
	events := &eventLog{}
	recorder := &fakeRecorder{}
	r, sink := newTestReceiver(t, Config{Events: events.events(), Recorder: recorder}, fakeDecoder{})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	sender, err := netw.Dial(r.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(protocol.BuildHello(5)))
	accept, ok := readKind(t, sender, protocol.KindAccept, 20)
	require.True(t, ok)
	assert.Equal(t, uint32(5), accept.SessionID)

	require.NoError(t, sender.Send(protocol.BuildKeepAlive(5)))
	_, ok = readKind(t, sender, protocol.KindAccept, 20)
	require.True(t, ok, "keep-alive is answered")

	for seq := range uint32(15) {
		payload := codec.Int16ToBytes(frame(int16(seq+1) * 10))
		require.NoError(t, sender.Send(protocol.Build(protocol.KindPcm, 5, seq, payload)))
	}

	assert.Eventually(t, sink.isPlaying, 3*time.Second, 10*time.Millisecond)
	written := sink.samples()
	require.GreaterOrEqual(t, len(written), 6*codec.FrameSamples)
	assert.Equal(t, frame(10), written[:codec.FrameSamples], "first frame is sequence 0, untouched")
	assert.Equal(t, frame(20), written[codec.FrameSamples:2*codec.FrameSamples])

	stats, ok := readKind(t, sender, protocol.KindStats, 30)
	require.True(t, ok)
	_, ok = protocol.ParseStats(stats.Payload)
	assert.True(t, ok)

	assert.True(t, events.has(internal.StatusListening))
	assert.Eventually(t, func() bool { return events.has(internal.StatusConnected) }, 2*time.Second, 10*time.Millisecond)

	sample, ok := recorder.first()
	require.True(t, ok)
	assert.Equal(t, uint32(5), sample.Session)
	assert.Equal(t, uint64(15), sample.Packets)

	r.Stop()
	assert.True(t, events.has(internal.StatusIdle))
	assert.False(t, sink.isPlaying())
}

func TestCheckTone(t *testing.T) {
	r, sink := newTestReceiver(t, Config{}, fakeDecoder{})
	require.NoError(t, r.PlayCheckTone())

	assert.Len(t, sink.samples(), codec.SampleRate)
	assert.True(t, sink.isPlaying())
	assert.Greater(t, r.suppressUntil.Load(), time.Now().UnixNano())
}

type constantProbe struct{ amplitude int16 }

func (p constantProbe) Read(pcm []int16) int {
	// one frame per poll
	fill(pcm, p.amplitude)
	return len(pcm)
}

func (p constantProbe) Stopped() <-chan struct{} { return nil }
func (p constantProbe) Close() error             { return nil }

type onceProbe struct {
	constantProbe
	served bool
}

func (p *onceProbe) Read(pcm []int16) int {
	if p.served {
		p.served = false
		return 0
	}
	p.served = true
	return p.constantProbe.Read(pcm)
}

func TestCheckLoopback(t *testing.T) {
	r, _ := newTestReceiver(t, Config{}, fakeDecoder{})

	pass, err := r.CheckLoopback(context.Background(), &onceProbe{constantProbe: constantProbe{amplitude: int16(dsp.DbToLinear(-20) * 32767)}})
	require.NoError(t, err)
	assert.True(t, pass)

	pass, err = r.CheckLoopback(context.Background(), &onceProbe{})
	require.NoError(t, err)
	assert.False(t, pass)
}
