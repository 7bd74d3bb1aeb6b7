package media

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	sampleRate    = 8000
	frameDuration = 20 * time.Millisecond
	frameSamples  = sampleRate / 50 // 160 samples per 20 ms frame
	ulawSilence   = 0xFF
)

var pcmuCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypePCMU,
	ClockRate: sampleRate,
	Channels:  1,
}

// sampleTrack pushes µ-law frames into a TrackLocalStaticSample at a fixed
// 20 ms cadence. The producer goroutine is owned by the track and stops on
// Close.
type sampleTrack struct {
	id    string
	local *webrtc.TrackLocalStaticSample

	closeOnce sync.Once
	done      chan struct{}
}

func newSampleTrack(label string) (*sampleTrack, error) {
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(pcmuCapability, id, label)
	if err != nil {
		return nil, err
	}
	return &sampleTrack{
		id:    id,
		local: local,
		done:  make(chan struct{}),
	}, nil
}

func (t *sampleTrack) ID() string               { return t.id }
func (t *sampleTrack) Kind() string             { return webrtc.RTPCodecTypeAudio.String() }
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *sampleTrack) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// run feeds frames from next into the track until the source is exhausted or
// the track is closed. next returns a µ-law frame of frameSamples bytes.
func (t *sampleTrack) run(next func() ([]byte, bool)) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			frame, ok := next()
			if !ok {
				return
			}
			if err := t.local.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				slog.Warn("write sample failed", "track", t.id, "error", err)
				return
			}
		}
	}
}

// silenceFrame is shared by every silent track; WriteSample copies it out.
var silenceFrame = func() []byte {
	frame := make([]byte, frameSamples)
	for i := range frame {
		frame[i] = ulawSilence
	}
	return frame
}()
