package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// wavHeaderSize is the size of the canonical RIFF/WAVE header written by WrapPCM.
const wavHeaderSize = 44

var (
	// ErrNotWAV is returned when a payload is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("not a RIFF/WAVE container")

	// ErrMissingData is returned when a WAV container has no data chunk.
	ErrMissingData = errors.New("WAV container missing data chunk")
)

// PCMFormat describes linear PCM sample layout.
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultPCMFormat is what the speech provider emits for raw output:
// 24 kHz, mono, 16-bit signed little endian.
func DefaultPCMFormat() PCMFormat {
	return PCMFormat{
		SampleRate: 24000,
		Channels:   1,
		BitDepth:   16,
	}
}

// BlockAlign returns the number of bytes per sample frame.
func (f PCMFormat) BlockAlign() int {
	return f.Channels * f.BitDepth / 8
}

// ByteRate returns the number of bytes per second of audio.
func (f PCMFormat) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// DurationOf returns how long n bytes of PCM in this format play for.
func (f PCMFormat) DurationOf(n int) time.Duration {
	if f.ByteRate() == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.ByteRate())
}

// WAVInfo is the format metadata extracted from a RIFF/WAVE header.
type WAVInfo struct {
	PCMFormat
	AudioFormat uint16 // 1 = integer PCM
	DataOffset  int    // byte offset of the first sample
	DataSize    int    // length of the sample data in bytes
}

// Duration returns the playback length of the sample data.
func (w WAVInfo) Duration() time.Duration {
	return w.DurationOf(w.DataSize)
}

// Samples returns the PCM payload of wav described by w.
func (w WAVInfo) Samples(wav []byte) []byte {
	return wav[w.DataOffset : w.DataOffset+w.DataSize]
}

// WrapPCM prepends a canonical 44-byte WAV header to raw PCM samples.
func WrapPCM(pcm []byte, format PCMFormat) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1)
	le.PutUint16(buf[22:24], uint16(format.Channels))
	le.PutUint32(buf[24:28], uint32(format.SampleRate))
	le.PutUint32(buf[28:32], uint32(format.ByteRate()))
	le.PutUint16(buf[32:34], uint16(format.BlockAlign()))
	le.PutUint16(buf[34:36], uint16(format.BitDepth))

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of wav and returns the format and location
// of the sample data. The fmt chunk is located by scanning rather than assumed
// to sit at a fixed offset.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return WAVInfo{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			f := wav[body:]
			info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitDepth = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVInfo{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			size := chunkSize
			if body+size > len(wav) {
				// Streaming writers leave the size unset; clamp to what we have.
				size = len(wav) - body
			}
			info.DataOffset = body
			info.DataSize = size
			return info, nil
		}

		// Chunks are word aligned.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, ErrMissingData
}
