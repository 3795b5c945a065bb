// Package audio provides the PCM primitives shared across the voxgate
// pipeline: sample conversion, WAV framing, window segmentation, signal
// quality estimation and speech enhancement. All functions operate on
// little-endian 16-bit mono PCM unless stated otherwise.
package audio

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is the width of one PCM sample handled by this package.
const BytesPerSample = 2

// BytesToInt16s converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// Int16sToBytes converts int16 samples to little-endian PCM bytes.
func Int16sToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// Duration reports how much audio time n bytes of mono PCM cover at the
// given sample rate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// toFloats normalizes PCM16 bytes to float64 samples in [-1, 1).
func toFloats(pcm []byte) []float64 {
	x := make([]float64, len(pcm)/2)
	for i := range x {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		x[i] = float64(s) / 32768.0
	}
	return x
}
