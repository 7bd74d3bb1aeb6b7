package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stereoPCM(pairs ...[2]int16) []byte {
	out := make([]byte, len(pairs)*4)
	for i, p := range pairs {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(p[0]))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(p[1]))
	}
	return out
}

func TestDownmixStereoAveragesChannels(t *testing.T) {
	mono := downmixStereo(stereoPCM(
		[2]int16{100, 200},
		[2]int16{-100, 300},
		[2]int16{0, 0},
	))

	require.Len(t, mono, 3)
	assert.Equal(t, int16(150), mono[0])
	assert.Equal(t, int16(100), mono[1])
	assert.Equal(t, int16(0), mono[2])
}

func TestDownmixStereoNeverOverflows(t *testing.T) {
	mono := downmixStereo(stereoPCM([2]int16{32767, 32767}, [2]int16{-32768, -32768}))

	require.Len(t, mono, 2)
	assert.Equal(t, int16(32767), mono[0])
	assert.Equal(t, int16(-32768), mono[1])
}

func TestResampleSameRatePassesThrough(t *testing.T) {
	in := []int16{1, 2, 3}
	assert.Equal(t, in, resample(in, 8000, 8000))
	assert.Empty(t, resample(nil, 44100, 8000))
}

func TestResampleDecimates(t *testing.T) {
	in := make([]int16, 48)
	for i := range in {
		in[i] = int16(i)
	}

	out := resample(in, 48000, 8000)

	require.Len(t, out, 8)
	assert.Equal(t, int16(0), out[0])
	assert.Equal(t, int16(6), out[1])
	assert.Equal(t, int16(42), out[7])
}

func TestEncodeUlawSilence(t *testing.T) {
	out := encodeUlaw(make([]int16, 16))

	require.Len(t, out, 16)
	for _, b := range out {
		assert.EqualValues(t, ulawSilence, b)
	}
}

func TestFramesPadTail(t *testing.T) {
	ulaw := make([]byte, frameSamples*2+10)
	for i := range ulaw {
		ulaw[i] = 0x42
	}

	out := frames(ulaw)

	require.Len(t, out, 3)
	for _, frame := range out {
		assert.Len(t, frame, frameSamples)
	}
	tail := out[2]
	assert.EqualValues(t, 0x42, tail[9])
	for i := 10; i < frameSamples; i++ {
		require.EqualValues(t, ulawSilence, tail[i], "tail must be padded with silence")
	}
}

func TestFramesEmptyInput(t *testing.T) {
	assert.Empty(t, frames(nil))
}
