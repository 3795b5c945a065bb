package audio

import (
	"encoding/binary"
	"math"
)

// Enhance prepares a PCM16 window for classification: remove DC offset,
// attenuate samples below the noise floor, and normalize the peak level.
// Misaligned or empty input is returned unchanged. The output has the same
// length as the input.
func Enhance(pcm []byte) []byte {
	if len(pcm) == 0 || len(pcm)%2 != 0 {
		return pcm
	}
	x := toFloats(pcm)

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}

	var noise float64
	if len(x) >= snrFrame {
		noise = 1e-4
		if frameRMS := frameEnergies(x); len(frameRMS) > 0 {
			noise = percentile(frameRMS, 10)
		}
		noise = math.Max(noise, 1e-5)
	} else {
		noise = math.Max(1e-4, rms(x)*0.5)
	}

	// Soft gate: pull near-floor samples down rather than zeroing them.
	threshold := 1.5 * noise
	for i := range x {
		if math.Abs(x[i]) < threshold {
			x[i] *= 0.4
		}
	}

	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	gain := math.Min(5.0, 0.95/(peak+1e-9))

	out := make([]byte, len(x)*2)
	for i, v := range x {
		v *= gain
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767.0)))
	}
	return out
}
