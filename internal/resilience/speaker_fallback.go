package resilience

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voxgate/voxgate/pkg/provider/speaker"
)

// SpeakerFallback implements [speaker.Provider] with automatic failover across
// multiple identification backends. Each backend has its own circuit breaker.
type SpeakerFallback struct {
	group    *FallbackGroup[speaker.Provider]
	backends []namedSpeaker
}

type namedSpeaker struct {
	name     string
	provider speaker.Provider
}

// Compile-time interface assertion.
var _ speaker.Provider = (*SpeakerFallback)(nil)

// NewSpeakerFallback creates a [SpeakerFallback] with primary as the preferred
// backend.
func NewSpeakerFallback(primary speaker.Provider, primaryName string, cfg FallbackConfig) *SpeakerFallback {
	return &SpeakerFallback{
		group:    NewFallbackGroup(primary, primaryName, cfg),
		backends: []namedSpeaker{{name: primaryName, provider: primary}},
	}
}

// AddFallback registers an additional speaker backend as a fallback.
func (f *SpeakerFallback) AddFallback(name string, provider speaker.Provider) {
	f.group.AddFallback(name, provider)
	f.backends = append(f.backends, namedSpeaker{name: name, provider: provider})
}

// Classify scores one window using the first healthy backend.
func (f *SpeakerFallback) Classify(ctx context.Context, pcm []byte, sampleRate int) (speaker.Classification, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p speaker.Provider) (speaker.Classification, error) {
		return p.Classify(ctx, pcm, sampleRate)
	})
}

// Labels returns the enrolled labels from the first backend that supports
// listing. The call bypasses the circuit breakers: label listing is an
// occasional administrative lookup, and a backend that merely lacks the
// endpoint must not get its Classify breaker tripped for it.
func (f *SpeakerFallback) Labels(ctx context.Context) ([]string, error) {
	type labelLister interface {
		Labels(ctx context.Context) ([]string, error)
	}

	var lastErr error
	for _, b := range f.backends {
		ll, ok := b.provider.(labelLister)
		if !ok {
			slog.Debug("resilience: speaker backend has no label listing", "provider", b.name)
			continue
		}
		labels, err := ll.Labels(ctx)
		if err == nil {
			return labels, nil
		}
		lastErr = err
		slog.Warn("resilience: label listing failed, trying next",
			"provider", b.name, "error", err)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("resilience: no speaker backend supports label listing")
}

// Healthy reports nil if at least one backend answers its health probe.
func (f *SpeakerFallback) Healthy(ctx context.Context) error {
	type healthChecker interface {
		Healthy(ctx context.Context) error
	}

	var lastErr error
	probed := false
	for _, b := range f.backends {
		hc, ok := b.provider.(healthChecker)
		if !ok {
			continue
		}
		probed = true
		err := hc.Healthy(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if !probed {
		// No backend exposes a probe; assume reachable.
		return nil
	}
	return lastErr
}

// States reports the circuit breaker state of every backend.
func (f *SpeakerFallback) States() map[string]State {
	return f.group.States()
}
