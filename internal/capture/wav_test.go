package capture

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16leBytes(samples []int16) []byte {
	buf := &bytes.Buffer{}
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 42}
	data, err := encodeWAV(s16leBytes(samples), 44100, 1)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, buf.Data, len(samples))
	for i, want := range samples {
		assert.Equal(t, int(want), buf.Data[i], "sample %d", i)
	}
}

func TestEncodeWAVStereo(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	data, err := encodeWAV(s16leBytes(samples), 48000, 2)
	require.NoError(t, err)

	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(48000), dec.SampleRate)
}

func TestPCMToIntsDropsTrailingOddByte(t *testing.T) {
	raw := append(s16leBytes([]int16{7, -7}), 0xFF)
	got := pcmToInts(raw)
	assert.Equal(t, []int{7, -7}, got)
}

func TestSeekableBuffer(t *testing.T) {
	b := &seekableBuffer{}

	n, err := b.Write([]byte("RIFF????WAVE"))
	require.NoError(t, err)
	require.Equal(t, 12, n)

	// Seek back and patch, the way the WAV encoder fixes chunk sizes.
	_, err = b.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = b.Write([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF1234WAVE"), b.data)

	pos, err := b.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	_, err = b.Seek(-100, io.SeekCurrent)
	assert.Error(t, err)
}
