package audio

import "github.com/gen2brain/malgo"

// close stops and releases the device, then its context.
func (d *device) close() {
	if d.dev != nil {
		d.dev.Uninit()
	}
	teardownContext(d.ctx)
	log.WithField("kind", kindName(d.kind)).Debug("uninit and freed audio device")
}

func teardownContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	if err := ctx.Uninit(); err != nil {
		log.WithError(err).Warn("error uninitializing device context")
	}
	ctx.Free()
}
