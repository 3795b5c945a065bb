package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/pkg/provider/emotion"
	emotionhttp "github.com/voxgate/voxgate/pkg/provider/emotion/httpapi"
	emotionmock "github.com/voxgate/voxgate/pkg/provider/emotion/mock"
	"github.com/voxgate/voxgate/pkg/provider/speaker"
	speakerhttp "github.com/voxgate/voxgate/pkg/provider/speaker/httpapi"
	speakermock "github.com/voxgate/voxgate/pkg/provider/speaker/mock"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	ttsmock "github.com/voxgate/voxgate/pkg/provider/tts/mock"
	ttsopenai "github.com/voxgate/voxgate/pkg/provider/tts/openai"
)

// SpeakerBackend is the full surface the app needs from the identification
// backend: window scoring for the engine, the enrolled-label list for the
// binding flow, and a probe for the readiness endpoint.
type SpeakerBackend interface {
	speaker.Provider
	Labels(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context) error
}

// Providers holds one backend per model slot. Speaker is required. A nil
// Emotion leaves decisions without emotion enrichment; a nil TTS sends
// greetings as text only.
type Providers struct {
	Speaker SpeakerBackend
	Emotion emotion.Provider
	TTS     tts.Provider
}

// BuildProviders instantiates the backends named in cfg, wrapping any entry
// that declares fallbacks in a circuit-breaking failover chain.
func BuildProviders(cfg *config.Config) (*Providers, error) {
	ps := &Providers{}

	spk, err := buildSpeaker(cfg.Providers.Speaker)
	if err != nil {
		return nil, fmt.Errorf("app: create speaker provider: %w", err)
	}
	ps.Speaker = spk
	slog.Info("provider created", "kind", "speaker",
		"name", cfg.Providers.Speaker.Name,
		"fallbacks", len(cfg.Providers.Speaker.Fallbacks))

	if entry := cfg.Providers.Emotion; entry.Name != "" {
		p, err := buildEmotion(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create emotion provider: %w", err)
		}
		ps.Emotion = p
		slog.Info("provider created", "kind", "emotion",
			"name", entry.Name, "fallbacks", len(entry.Fallbacks))
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := buildTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create tts provider: %w", err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts",
			"name", entry.Name, "model", entry.Model)
	}

	return ps, nil
}

// fallbackConfig is the breaker tuning shared by every provider chain.
func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  3,
		},
	}
}

func buildSpeaker(entry config.ProviderEntry) (SpeakerBackend, error) {
	primary, err := newSpeaker(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSpeakerFallback(primary, entry.Name, fallbackConfig())
	for _, fb := range entry.Fallbacks {
		p, err := newSpeaker(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

func newSpeaker(entry config.ProviderEntry) (SpeakerBackend, error) {
	switch entry.Name {
	case "httpapi":
		var opts []speakerhttp.Option
		if d := entry.Timeout(); d > 0 {
			opts = append(opts, speakerhttp.WithTimeout(d))
		}
		return speakerhttp.New(entry.BaseURL, opts...)
	case "mock":
		return &speakermock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown speaker provider %q", entry.Name)
	}
}

func buildEmotion(entry config.ProviderEntry) (emotion.Provider, error) {
	primary, err := newEmotion(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewEmotionFallback(primary, entry.Name, fallbackConfig())
	for _, fb := range entry.Fallbacks {
		p, err := newEmotion(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

func newEmotion(entry config.ProviderEntry) (emotion.Provider, error) {
	switch entry.Name {
	case "httpapi":
		var opts []emotionhttp.Option
		if d := entry.Timeout(); d > 0 {
			opts = append(opts, emotionhttp.WithTimeout(d))
		}
		return emotionhttp.New(entry.BaseURL, opts...)
	case "mock":
		return &emotionmock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown emotion provider %q", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	primary, err := newTTS(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewTTSFallback(primary, entry.Name, fallbackConfig())
	for _, fb := range entry.Fallbacks {
		p, err := newTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

func newTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if d := entry.Timeout(); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	case "mock":
		return &ttsmock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}
