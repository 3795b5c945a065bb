package auth

import (
	"errors"
	"fmt"
)

// Config holds the decision thresholds. It is read-only after New; a
// running Engine never mutates it.
type Config struct {
	// WindowSeconds is the duration of one analysis window.
	WindowSeconds int

	// RequiredWindows is how many windows an attempt must fill. The
	// consensus rules only become interesting at 2 or more.
	RequiredWindows int

	// SampleRate is the capture rate in Hz assumed when a session does
	// not declare its own.
	SampleRate int

	// MinProb is the per-window and average top-1 score floor on the
	// agreement path.
	MinProb float64

	// MinMargin is the per-window floor for the gap between the top two
	// candidates.
	MinMargin float64

	// MinSNRdB gates each window's estimated signal-to-noise ratio
	// before any classifier call.
	MinSNRdB float64

	// OverrideProb, OverrideMargin, and OverrideOthersMax control the
	// high-confidence override on the disagreement path: the best window
	// must reach OverrideProb and OverrideMargin while every other
	// window stays at or below OverrideOthersMax.
	OverrideProb      float64
	OverrideMargin    float64
	OverrideOthersMax float64

	// MaxConcurrency bounds in-flight classifier calls per attempt.
	MaxConcurrency int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:     5,
		RequiredWindows:   1,
		SampleRate:        16000,
		MinProb:           0.80,
		MinMargin:         0.20,
		MinSNRdB:          12.0,
		OverrideProb:      0.95,
		OverrideMargin:    0.30,
		OverrideOthersMax: 0.70,
		MaxConcurrency:    4,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("window_seconds %d must be positive", c.WindowSeconds))
	}
	if c.RequiredWindows < 1 {
		errs = append(errs, fmt.Errorf("required_windows %d must be at least 1", c.RequiredWindows))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d must be positive", c.SampleRate))
	}
	if c.MinProb < 0 || c.MinProb > 1 {
		errs = append(errs, fmt.Errorf("prob_threshold %.2f is out of range [0, 1]", c.MinProb))
	}
	if c.MinMargin < 0 || c.MinMargin > 1 {
		errs = append(errs, fmt.Errorf("margin_threshold %.2f is out of range [0, 1]", c.MinMargin))
	}
	if c.MinSNRdB < 0 {
		errs = append(errs, fmt.Errorf("min_snr_db %.1f must not be negative", c.MinSNRdB))
	}
	if c.OverrideProb < 0 || c.OverrideProb > 1 {
		errs = append(errs, fmt.Errorf("override_high_prob %.2f is out of range [0, 1]", c.OverrideProb))
	}
	if c.OverrideMargin < 0 || c.OverrideMargin > 1 {
		errs = append(errs, fmt.Errorf("override_high_margin %.2f is out of range [0, 1]", c.OverrideMargin))
	}
	if c.OverrideOthersMax < 0 || c.OverrideOthersMax > 1 {
		errs = append(errs, fmt.Errorf("override_other_max %.2f is out of range [0, 1]", c.OverrideOthersMax))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max_concurrency %d must be at least 1", c.MaxConcurrency))
	}
	return errors.Join(errs...)
}
