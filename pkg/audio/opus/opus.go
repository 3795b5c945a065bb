// Package opus decodes the Opus voice chunks the gateway accepts as an
// alternative to raw PCM. Browser capture typically produces 48 kHz Opus
// in 20 ms frames; the decoder emits little-endian PCM16 ready for the
// format converter.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/voxgate/voxgate/pkg/audio"
)

const (
	frameMs = 20
	// maxFrameMs caps the decode buffer at the largest frame duration the
	// Opus spec allows.
	maxFrameMs = 120
)

// Decoder wraps a gopus decoder for one client stream. Opus decoders carry
// state between consecutive packets, so each stream needs its own instance.
// Not safe for concurrent use.
type Decoder struct {
	dec        *gopus.Decoder
	sampleRate int
	channels   int
}

// NewDecoder creates a decoder for the given stream format. Opus supports
// 8, 12, 16, 24 and 48 kHz; the gateway default is 48 kHz mono.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// Decode decodes one Opus packet into little-endian PCM16 bytes at the
// decoder's stream format.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	frameSize := d.sampleRate * maxFrameMs / 1000
	pcm, err := d.dec.Decode(packet, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode packet: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}

// Format reports the PCM format the decoder emits.
func (d *Decoder) Format() audio.Format {
	return audio.Format{SampleRate: d.sampleRate, Channels: d.channels}
}
