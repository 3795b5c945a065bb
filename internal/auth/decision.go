package auth

import (
	"github.com/voxgate/voxgate/pkg/provider/emotion"
	"github.com/voxgate/voxgate/pkg/provider/speaker"
)

// Code identifies why an authentication attempt failed. A successful
// Decision carries an empty Code.
type Code string

const (
	// CodeNoAudio: the session had no buffered audio at decision time.
	CodeNoAudio Code = "NO_AUDIO"

	// CodeAudioTooShort: the buffer held fewer bytes than the required
	// window span.
	CodeAudioTooShort Code = "AUDIO_TOO_SHORT"

	// CodeLowSNR: a window failed the signal-quality gate. No classifier
	// call is made when this fires.
	CodeLowSNR Code = "LOW_SNR"

	// CodeInconsistentWindows: windows named different speakers and the
	// high-confidence override did not fire.
	CodeInconsistentWindows Code = "INCONSISTENT_WINDOWS"

	// CodeThresholdNotMet: windows agreed on a speaker but a score,
	// margin, or average threshold failed.
	CodeThresholdNotMet Code = "THRESHOLD_NOT_MET"

	// CodeModelError: a classifier call failed for at least one window.
	CodeModelError Code = "MODEL_ERROR"
)

// NoteOverride marks a Decision accepted through the high-confidence
// override rather than plain cross-window agreement.
const NoteOverride = "override_high_confidence"

// Message returns a short human-readable description of the code,
// suitable for client display. Unknown codes echo themselves.
func (c Code) Message() string {
	switch c {
	case CodeNoAudio:
		return "no audio was captured for this session"
	case CodeAudioTooShort:
		return "not enough audio was captured"
	case CodeLowSNR:
		return "audio quality is too low, please retry in a quieter environment"
	case CodeInconsistentWindows:
		return "voice samples did not consistently match one speaker"
	case CodeThresholdNotMet:
		return "voice match confidence is below the acceptance threshold"
	case CodeModelError:
		return "the speaker model is unavailable"
	}
	return string(c)
}

// WindowOutcome is the per-window diagnostic attached to a Decision.
// Result is nil when the window was never classified (quality-gate abort)
// or when its classifier call failed, in which case Err holds the cause.
type WindowOutcome struct {
	Index  int                     `json:"index"`
	SNRdB  float64                 `json:"snr_db"`
	Result *speaker.Classification `json:"result,omitempty"`
	Err    string                  `json:"error,omitempty"`
}

// Shortfall reports how much audio an AUDIO_TOO_SHORT attempt was missing.
type Shortfall struct {
	NeedBytes int `json:"need_bytes"`
	GotBytes  int `json:"got_bytes"`
}

// QualityReport identifies the window that failed the SNR gate.
type QualityReport struct {
	WindowIndex int     `json:"window_index"`
	SNRdB       float64 `json:"snr_db"`
}

// Decision is the typed outcome of one authentication attempt. Exactly one
// of two shapes is produced: Success true with Label and AvgProb set, or
// Success false with a Code. Emotion is best-effort and may be nil even on
// success.
type Decision struct {
	Success bool    `json:"success"`
	Label   string  `json:"label,omitempty"`
	AvgProb float64 `json:"avg_prob,omitempty"`
	Code    Code    `json:"code,omitempty"`
	Note    string  `json:"note,omitempty"`

	Windows   []WindowOutcome     `json:"windows,omitempty"`
	Emotion   *emotion.Prediction `json:"emotion,omitempty"`
	Shortfall *Shortfall          `json:"shortfall,omitempty"`
	Quality   *QualityReport      `json:"quality,omitempty"`
}
