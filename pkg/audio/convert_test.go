package audio_test

import (
	"testing"

	"github.com/voxgate/voxgate/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.Int16sToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := audio.BytesToInt16s(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples should clamp to 32767 (not overflow).
	stereo := audio.Int16sToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := audio.BytesToInt16s(mono)
	if len(got) != 1 {
		t.Fatalf("length mismatch: got %d, want 1", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := audio.Int16sToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := audio.Int16sToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := audio.BytesToInt16s(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3)
	pcm := audio.Int16sToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := audio.BytesToInt16s(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] != 100 {
		t.Errorf("first sample: got %d, want 100", got[0])
	}
}

func TestConverter_FastPath(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	pcm := audio.Int16sToBytes([]int16{1, 2, 3})
	out := conv.Convert(pcm, audio.Format{SampleRate: 16000, Channels: 1})
	if &out[0] != &pcm[0] {
		t.Error("matching format should return the input unchanged")
	}
}

func TestConverter_StereoDownmixAndResample(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 48kHz stereo, 96 frames → 16kHz mono, 32 samples.
	src := make([]int16, 96*2)
	for i := range 96 {
		src[i*2] = 3000
		src[i*2+1] = 1000
	}
	out := conv.Convert(audio.Int16sToBytes(src), audio.Format{SampleRate: 48000, Channels: 2})
	got := audio.BytesToInt16s(out)
	if len(got) != 32 {
		t.Fatalf("expected 32 samples, got %d", len(got))
	}
	for i, s := range got {
		if s != 2000 {
			t.Fatalf("sample %d: got %d, want 2000", i, s)
		}
	}
}

func TestConverter_MisalignedChunkDropped(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert([]byte{1, 2, 3}, audio.Format{SampleRate: 16000, Channels: 1})
	if out != nil {
		t.Errorf("misaligned chunk: got %d bytes, want nil", len(out))
	}
}
