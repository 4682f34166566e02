// Package audio frames the canonical utterance format: raw PCM16LE
// mono samples wrapped in the standard 44-byte WAV header the STT
// collaborator expects.
package audio

import (
	"encoding/binary"
	"errors"
)

const (
	numChannels   = 1
	bitsPerSample = 16
	headerSize    = 44
)

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV
// container. sampleRate defaults to 16 kHz when non-positive.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("audio: pcm16 data has odd byte length")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	out := make([]byte, headerSize, headerSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(headerSize-8)+dataSize)
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], byteRate)
	binary.LittleEndian.PutUint16(out[32:34], blockAlign)
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], dataSize)

	return append(out, pcm...), nil
}
