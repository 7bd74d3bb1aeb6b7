package media

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v4/pkg/media"
)

// CaptureMicrophone opens the default capture device at 8 kHz mono and feeds
// µ-law frames into a live track. Frame cadence is driven by the capture
// callback, not a ticker.
func (e *PionEngine) CaptureMicrophone() (Track, error) {
	t, err := newSampleTrack("microphone")
	if err != nil {
		return nil, fmt.Errorf("create mic track: %w", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = sampleRate

	var pending []byte
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			pending = append(pending, input...)
			for len(pending) >= frameSamples*2 {
				frame := g711Frame(pending[:frameSamples*2])
				pending = pending[frameSamples*2:]
				if err := t.local.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
					slog.Warn("mic write sample failed", "error", err)
					return
				}
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	return &micTrack{
		sampleTrack: t,
		device:      device,
		mctx:        mctx,
	}, nil
}

type micTrack struct {
	*sampleTrack
	device *malgo.Device
	mctx   *malgo.AllocatedContext
}

func (m *micTrack) Close() error {
	m.sampleTrack.Close()
	m.device.Uninit()
	if err := m.mctx.Uninit(); err != nil {
		return err
	}
	m.mctx.Free()
	return nil
}

// g711Frame encodes one 16-bit LPCM frame to µ-law.
func g711Frame(lpcm []byte) []byte {
	samples := make([]int16, frameSamples)
	for i := range samples {
		samples[i] = int16(uint16(lpcm[i*2]) | uint16(lpcm[i*2+1])<<8)
	}
	return encodeUlaw(samples)
}
