package audio

import (
	"math"
	"sort"
)

// snrFrame is the analysis frame length in samples for noise floor
// estimation. Shorter inputs fall back to a whole-signal estimate.
const snrFrame = 1024

// EstimateSNR estimates the signal-to-noise ratio of a PCM16 window in dB.
// The noise floor is taken as the 10th percentile of per-frame RMS energy,
// the signal level as the whole-window RMS. Empty or misaligned input
// yields 0.0. The function never panics.
func EstimateSNR(pcm []byte) float64 {
	if len(pcm) == 0 || len(pcm)%2 != 0 {
		return 0.0
	}
	x := toFloats(pcm)
	rmsAll := rms(x)

	if len(x) < snrFrame {
		return 20.0 * math.Log10(math.Max(rmsAll, 1e-6)/1e-6)
	}

	frameRMS := frameEnergies(x)
	noise := rmsAll * 0.5
	if len(frameRMS) > 0 {
		noise = percentile(frameRMS, 10)
	}
	noise = math.Max(noise, 1e-6)
	return 20.0 * math.Log10(math.Max(rmsAll, noise)/noise)
}

// frameEnergies returns the RMS of each complete snrFrame-sized frame.
func frameEnergies(x []float64) []float64 {
	var out []float64
	for i := 0; i+snrFrame <= len(x); i += snrFrame {
		out = append(out, rms(x[i:i+snrFrame]))
	}
	return out
}

// rms returns the root mean square of x with a small bias term so silence
// does not produce -Inf downstream.
func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(x)) + 1e-12)
}

// percentile computes the p-th percentile of values using linear
// interpolation between the two nearest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
