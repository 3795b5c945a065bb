package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"speaker": {"httpapi", "mock"},
	"emotion": {"httpapi", "mock"},
	"tts":     {"openai", "mock"},
}

// knownTTSVoices are the voices the OpenAI speech API accepts today.
// Unknown voices only warn; the API may grow new ones.
var knownTTSVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
		// Empty file runs on pure defaults.
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Odd-but-legal combinations only log advisories.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.OpsAddr == "" {
		slog.Warn("server.ops_addr is empty; metrics and health endpoints are disabled")
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Engine thresholds
	if err := cfg.Engine.ToAuth().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	// Providers
	validateProviderName("speaker", cfg.Providers.Speaker.Name)
	validateProviderName("emotion", cfg.Providers.Emotion.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.Speaker.Name == "" {
		errs = append(errs, errors.New("providers.speaker.name is required; logins cannot run without an identification backend"))
	}
	errs = append(errs, validateEntryURLs("providers.speaker", cfg.Providers.Speaker)...)
	errs = append(errs, validateEntryURLs("providers.emotion", cfg.Providers.Emotion)...)

	if cfg.Providers.Emotion.Name == "" {
		slog.Warn("providers.emotion is not configured; decisions will carry no emotion enrichment")
	}
	if cfg.Providers.TTS.Name == "" && cfg.Greeting.Enabled {
		slog.Warn("providers.tts is not configured; greetings will be text-only")
	}
	if cfg.Providers.TTS.Name == "openai" && cfg.Providers.TTS.APIKey == "" {
		slog.Warn("providers.tts.api_key is empty; relying on the OPENAI_API_KEY environment variable")
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; the identity directory runs in-memory and the audit log is disabled")
	} else if cfg.Database.VoiceprintDimensions <= 0 {
		errs = append(errs, fmt.Errorf("database.voiceprint_dimensions %d must be positive when postgres_dsn is set", cfg.Database.VoiceprintDimensions))
	}

	// Session
	if cfg.Session.MaxBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("session.max_buffer_bytes %d must not be negative", cfg.Session.MaxBufferBytes))
	}
	if cfg.Session.IdleTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("session.idle_timeout_seconds %d must be at least 1", cfg.Session.IdleTimeoutSeconds))
	}
	if cfg.Session.PruneIntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("session.prune_interval_seconds %d must be at least 1", cfg.Session.PruneIntervalSeconds))
	}

	// Binding
	if cfg.Binding.ExpirySeconds < 1 {
		errs = append(errs, fmt.Errorf("binding.expiry_seconds %d must be at least 1", cfg.Binding.ExpirySeconds))
	}
	if cfg.Binding.PhoneticThreshold < 0 || cfg.Binding.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("binding.phonetic_threshold %.2f is out of range [0, 1]", cfg.Binding.PhoneticThreshold))
	}
	if cfg.Binding.FuzzyThreshold < 0 || cfg.Binding.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("binding.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Binding.FuzzyThreshold))
	}

	// Greeting
	if _, err := cfg.Greeting.Location(); err != nil {
		errs = append(errs, fmt.Errorf("greeting.timezone %q: %w", cfg.Greeting.Timezone, err))
	}
	if v := cfg.Greeting.Voice; v != "" && !slices.Contains(knownTTSVoices, v) {
		slog.Warn("unknown greeting voice — may be a typo or a newer API voice",
			"voice", v,
			"known", knownTTSVoices,
		)
	}

	return errors.Join(errs...)
}

// validateEntryURLs checks that httpapi entries (and their fallbacks) carry
// a base URL.
func validateEntryURLs(prefix string, entry ProviderEntry) []error {
	var errs []error
	if entry.Name == "httpapi" && entry.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for the httpapi provider", prefix))
	}
	for i, fb := range entry.Fallbacks {
		if fb.Name == "httpapi" && fb.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].base_url is required for the httpapi provider", prefix, i))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
