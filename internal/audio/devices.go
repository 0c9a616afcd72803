// Package audio adapts miniaudio capture and playback devices to the engine's mono
// 16-bit PCM at the codec sample rate. Resampling and downmixing happen inside miniaudio.
package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "audio")

var ErrDeviceNotFound = errors.New("audio device not found")

// Device describes one endpoint as reported by the platform backend.
type Device struct {
	Name    string
	Default bool
}

// ListDevices enumerates capture and playback endpoints.
func ListDevices() (capture, playback []Device, err error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing device context: %w", err)
	}
	defer teardownContext(ctx)

	if capture, err = devicesOf(ctx, malgo.Capture); err != nil {
		return nil, nil, err
	}
	if playback, err = devicesOf(ctx, malgo.Playback); err != nil {
		return nil, nil, err
	}
	return capture, playback, nil
}

func devicesOf(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]Device, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("error enumerating devices: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for i := range infos {
		devices = append(devices, Device{Name: infos[i].Name(), Default: infos[i].IsDefault != 0})
	}
	return devices, nil
}

// findDevice returns the first endpoint whose name contains name, ignoring case.
func findDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("error enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) {
			return &infos[i].ID, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// device is a miniaudio context with the single device opened on it.
type device struct {
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
	kind malgo.DeviceType
}

// openDevice initializes, but does not start, a mono S16 device. An empty name selects the
// system default. Anything acquired is released again on failure.
func openDevice(kind malgo.DeviceType, name string, callbacks malgo.DeviceCallbacks) (d *device, err error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("error initializing device context: %w", err)
	}
	defer func() {
		if err != nil {
			teardownContext(ctx)
		}
	}()

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = sampleRate
	deviceConfig.PeriodSizeInMilliseconds = periodMs

	var id *malgo.DeviceID
	if name != "" {
		if id, err = findDevice(ctx, kind, name); err != nil {
			return nil, err
		}
	}

	switch kind {
	case malgo.Capture:
		deviceConfig.Capture.Format = AudioFormat
		deviceConfig.Capture.Channels = numChannels
		if id != nil {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	case malgo.Playback:
		deviceConfig.Playback.Format = AudioFormat
		deviceConfig.Playback.Channels = numChannels
		deviceConfig.Alsa.NoMMap = 1
		if id != nil {
			deviceConfig.Playback.DeviceID = id.Pointer()
		}
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("error creating %s device: %w", kindName(kind), err)
	}

	log.WithFields(logrus.Fields{"kind": kindName(kind), "device": name}).Debug("audio device initialized")
	return &device{ctx: ctx, dev: dev, kind: kind}, nil
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}
