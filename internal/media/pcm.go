package media

import (
	"encoding/binary"

	"github.com/zaf/g711"
)

// downmixStereo folds interleaved 16-bit little-endian stereo PCM into mono
// samples by averaging the channel pair.
func downmixStereo(pcm []byte) []int16 {
	frames := len(pcm) / 4
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		mono[i] = int16((int32(l) + int32(r)) / 2)
	}
	return mono
}

// resample converts mono samples between rates by nearest-neighbor pick.
// Good enough for 8 kHz telephony output; anything fancier belongs in a
// proper DSP dependency.
func resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	n := len(samples) * to / from
	out := make([]int16, n)
	for i := range out {
		out[i] = samples[i*from/to]
	}
	return out
}

// encodeUlaw converts mono samples to G.711 µ-law bytes.
func encodeUlaw(samples []int16) []byte {
	lpcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(lpcm[i*2:], uint16(s))
	}
	return g711.EncodeUlaw(lpcm)
}

// frames slices µ-law audio into frameSamples-sized chunks, padding the tail
// frame with silence.
func frames(ulaw []byte) [][]byte {
	var out [][]byte
	for off := 0; off < len(ulaw); off += frameSamples {
		end := off + frameSamples
		if end > len(ulaw) {
			frame := make([]byte, frameSamples)
			n := copy(frame, ulaw[off:])
			for i := n; i < frameSamples; i++ {
				frame[i] = ulawSilence
			}
			out = append(out, frame)
			break
		}
		out = append(out, ulaw[off:end])
	}
	return out
}
