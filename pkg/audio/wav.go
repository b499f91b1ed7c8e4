package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical 44-byte RIFF/WAV header with a
// single PCM fmt chunk followed directly by the data chunk.
const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit signed little-endian mono PCM data in a standard
// RIFF/WAV container. No external dependencies are required; the result is
// suitable for file storage or direct inclusion in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)           // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a mono 16-bit PCM WAV file and returns the raw PCM bytes
// and the sample rate. Only the canonical 44-byte header layout written by
// [EncodeWAV] (and most audio tooling) is supported.
func DecodeWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("wav: data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("wav: not a RIFF/WAVE file")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("wav: missing fmt chunk")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported audio format %d (only PCM is supported)", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		return nil, 0, fmt.Errorf("wav: unsupported channel count %d (only mono is supported)", ch)
	}
	if bps := binary.LittleEndian.Uint16(data[34:36]); bps != 16 {
		return nil, 0, fmt.Errorf("wav: unsupported bit depth %d (only 16-bit is supported)", bps)
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("wav: missing data chunk")
	}

	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	if rate <= 0 {
		return nil, 0, fmt.Errorf("wav: invalid sample rate %d", rate)
	}

	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize > len(data)-wavHeaderSize {
		dataSize = len(data) - wavHeaderSize
	}

	return data[wavHeaderSize : wavHeaderSize+dataSize], rate, nil
}

// WAVDuration returns the play length in seconds of a mono 16-bit PCM WAV
// file without decoding the audio data.
func WAVDuration(data []byte) (float64, error) {
	pcm, rate, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	return float64(len(pcm)/2) / float64(rate), nil
}
