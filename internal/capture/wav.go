package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// encodeWAV wraps little-endian S16 PCM into a WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	buf := &seekableBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, wavBitDepth, channels, 1)

	if err := enc.Write(&audio.IntBuffer{
		Data:   pcmToInts(pcm),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
	}); err != nil {
		return nil, fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return buf.data, nil
}

// pcmToInts converts S16LE bytes into the int samples the WAV encoder
// expects. A trailing odd byte is dropped.
func pcmToInts(pcm []byte) []int {
	samples := make([]int, 0, len(pcm)/2)
	buf := bytes.NewReader(pcm)
	for {
		var sample int16
		if err := binary.Read(buf, binary.LittleEndian, &sample); err != nil {
			break
		}
		samples = append(samples, int(sample))
	}
	return samples
}

// seekableBuffer is an in-memory io.WriteSeeker. The WAV encoder seeks
// back to patch chunk sizes on close.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position: %d", next)
	}
	b.pos = next
	return int64(next), nil
}
