package resilience

import (
	"context"

	"github.com/voxgate/voxgate/pkg/provider/emotion"
)

// EmotionFallback implements [emotion.Provider] with automatic failover across
// multiple recognition backends. Each backend has its own circuit breaker.
//
// Emotion inference is already best-effort at the engine level; the breaker
// here exists so a dead emotion server is skipped instantly instead of eating
// a timeout on every login.
type EmotionFallback struct {
	group *FallbackGroup[emotion.Provider]
}

// Compile-time interface assertion.
var _ emotion.Provider = (*EmotionFallback)(nil)

// NewEmotionFallback creates an [EmotionFallback] with primary as the
// preferred backend.
func NewEmotionFallback(primary emotion.Provider, primaryName string, cfg FallbackConfig) *EmotionFallback {
	return &EmotionFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional emotion backend as a fallback.
func (f *EmotionFallback) AddFallback(name string, provider emotion.Provider) {
	f.group.AddFallback(name, provider)
}

// Infer predicts the emotional tone of one window using the first healthy
// backend.
func (f *EmotionFallback) Infer(ctx context.Context, pcm []byte, sampleRate int) (emotion.Prediction, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p emotion.Provider) (emotion.Prediction, error) {
		return p.Infer(ctx, pcm, sampleRate)
	})
}

// States reports the circuit breaker state of every backend.
func (f *EmotionFallback) States() map[string]State {
	return f.group.States()
}
