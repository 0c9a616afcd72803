package internal

import (
	"github.com/gregriff/lanmic/internal/dsp"
	"github.com/gregriff/lanmic/internal/protocol"
)

// Events are the callbacks a pipeline uses to surface what it is doing. Any field may be
// nil. Callbacks run on the pipeline's loops and must return quickly.
type Events struct {
	// Status receives short state text ("connected", "reconnecting", ...) only when it changes.
	Status func(text string)
	// InputLevel and OutputLevel receive metering for the signal entering and leaving the
	// signal chain.
	InputLevel  func(dsp.Level)
	OutputLevel func(dsp.Level)
	// Warning receives the current warning text, empty when cleared.
	Warning func(text string)
	// Stats receives receiver statistics: computed locally on a receiver, reported by the
	// remote end on a sender.
	Stats func(protocol.Stats)
	// Error receives recoverable faults; the pipeline keeps running.
	Error func(err error)
}

func (e Events) EmitStatus(text string) {
	if e.Status != nil {
		e.Status(text)
	}
}

func (e Events) EmitInputLevel(l dsp.Level) {
	if e.InputLevel != nil {
		e.InputLevel(l)
	}
}

func (e Events) EmitOutputLevel(l dsp.Level) {
	if e.OutputLevel != nil {
		e.OutputLevel(l)
	}
}

func (e Events) EmitWarning(text string) {
	if e.Warning != nil {
		e.Warning(text)
	}
}

func (e Events) EmitStats(s protocol.Stats) {
	if e.Stats != nil {
		e.Stats(s)
	}
}

func (e Events) EmitError(err error) {
	if e.Error != nil {
		e.Error(err)
	}
}

// Status texts shared by both pipelines.
const (
	StatusIdle         = "idle"
	StatusListening    = "listening"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusReconnecting = "reconnecting"
	StatusError        = "error"
)
