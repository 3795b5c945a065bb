package audio_test

import (
	"bytes"
	"testing"

	"github.com/voxgate/voxgate/pkg/audio"
)

func TestEnhance_PreservesLength(t *testing.T) {
	pcm := makeSinePCM(4096, 10000)
	out := audio.Enhance(pcm)
	if len(out) != len(pcm) {
		t.Fatalf("length: got %d, want %d", len(out), len(pcm))
	}
}

func TestEnhance_EmptyAndMisaligned(t *testing.T) {
	if out := audio.Enhance(nil); len(out) != 0 {
		t.Error("nil input should come back empty")
	}
	odd := []byte{1, 2, 3}
	if out := audio.Enhance(odd); !bytes.Equal(out, odd) {
		t.Error("misaligned input should come back unchanged")
	}
}

func TestEnhance_PeakNormalized(t *testing.T) {
	pcm := makeSinePCM(4096, 30000)
	out := audio.BytesToInt16s(audio.Enhance(pcm))

	var peak int16
	for _, s := range out {
		if s > peak {
			peak = s
		}
		if -s > peak {
			peak = -s
		}
	}
	// Peak should land near 0.95 of full scale.
	if peak < 29000 || peak > 32767 {
		t.Errorf("peak: got %d, want near 31130", peak)
	}
}

func TestEnhance_BoostsQuietInput(t *testing.T) {
	pcm := makeSinePCM(4096, 2000)
	in := audio.BytesToInt16s(pcm)
	out := audio.BytesToInt16s(audio.Enhance(pcm))

	var inPeak, outPeak int16
	for i := range in {
		if in[i] > inPeak {
			inPeak = in[i]
		}
		if out[i] > outPeak {
			outPeak = out[i]
		}
	}
	if outPeak <= inPeak {
		t.Errorf("quiet input not boosted: in peak %d, out peak %d", inPeak, outPeak)
	}
}

func TestEnhance_SoftIdempotence(t *testing.T) {
	once := audio.Enhance(makeSinePCM(8192, 30000))
	twice := audio.Enhance(once)

	a := audio.BytesToInt16s(once)
	b := audio.BytesToInt16s(twice)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	var maxDelta int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		if d > maxDelta {
			maxDelta = d
		}
	}
	// Re-running the filter on its own output should be a near no-op.
	if maxDelta > 16 {
		t.Errorf("second pass drifted: max sample delta %d, want <= 16", maxDelta)
	}
}

func TestEnhance_SilenceStaysQuiet(t *testing.T) {
	silence := make([]byte, 4096*2)
	out := audio.BytesToInt16s(audio.Enhance(silence))
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d: got %d, want 0", i, s)
		}
	}
}
