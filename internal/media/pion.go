package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// PionEngine is the production Engine: pion sample tracks fed by malgo
// capture, a silence generator, and go-mp3 file decode.
type PionEngine struct{}

// NewPionEngine returns the default media engine.
func NewPionEngine() *PionEngine {
	return &PionEngine{}
}

// SilentTrack returns a track that emits µ-law silence frames until closed.
func (e *PionEngine) SilentTrack() (Track, error) {
	t, err := newSampleTrack("silence")
	if err != nil {
		return nil, fmt.Errorf("create silent track: %w", err)
	}
	go t.run(func() ([]byte, bool) {
		return silenceFrame, true
	})
	return t, nil
}

// FileTrack decodes an MP3 file up front and loops it as a live track. The
// ADD_FAKE_USER announcement carries the returned track's ID so receivers can
// attribute the incoming audio.
func (e *PionEngine) FileTrack(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	// go-mp3 always yields 16-bit little-endian stereo at the source rate.
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	mono := downmixStereo(pcm)
	mono = resample(mono, dec.SampleRate(), sampleRate)
	audio := frames(encodeUlaw(mono))
	if len(audio) == 0 {
		return nil, fmt.Errorf("%s: no audio frames", filepath.Base(path))
	}

	t, err := newSampleTrack(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create file track: %w", err)
	}
	pos := 0
	go t.run(func() ([]byte, bool) {
		frame := audio[pos]
		pos = (pos + 1) % len(audio)
		return frame, true
	})
	return t, nil
}
