// Package speaker defines the Provider interface for speaker identification
// backends.
//
// A speaker provider wraps a voice identification model (an x-vector or
// ECAPA-style embedding network with an enrolled-speaker scoring head) and
// scores a single audio window against the set of enrolled voices. The
// decision engine submits each window independently and combines the
// results itself, so providers stay stateless per call.
//
// Implementations must be safe for concurrent use: the engine classifies
// the windows of one authentication attempt in parallel.
package speaker

import "context"

// Provider is implemented by speaker identification backends.
type Provider interface {
	// Classify scores one mono PCM16 window against the enrolled voices
	// and returns the ranked hypotheses. The window has already passed the
	// signal quality gate and enhancement. Respect ctx cancellation; a
	// deadline overrun surfaces as an ordinary error.
	Classify(ctx context.Context, pcm []byte, sampleRate int) (Classification, error)
}
