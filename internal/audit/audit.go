// Package audit persists authentication decisions for later review.
//
// Every login attempt produces one [Event] row, successful or not. When the
// speaker backend exposes a probe voiceprint the event stores it as a pgvector
// column, which makes similar-voice forensics possible through
// [Store.Nearest].
//
// Auditing is strictly best-effort: a decision must never fail because the
// audit backend is down. Callers should wrap the store in a [Guard], which
// swallows write errors and reports degradation instead of propagating it.
package audit

import (
	"context"
	"time"

	"github.com/voxgate/voxgate/internal/auth"
)

// Event is one recorded authentication attempt.
type Event struct {
	// ID is assigned by the store on Record.
	ID int64

	// SessionID identifies the capture session the decision consumed.
	SessionID string

	// Label is the accepted speaker label, empty on rejection.
	Label string

	Success bool

	// Code is the rejection code, empty on success.
	Code string

	AvgProb float64

	// SNRdB is the lowest window SNR observed, or the SNR of the window
	// that failed the quality gate. Zero when no window was cut.
	SNRdB float64

	// Emotion is the fused emotion label, empty when none was inferred.
	Emotion string

	// Voiceprint is the probe embedding backing the decision, nil when the
	// speaker backend exposes none.
	Voiceprint []float32

	// CreatedAt is assigned by the store on Record.
	CreatedAt time.Time
}

// Match is one similar-voice hit returned by Nearest.
type Match struct {
	Event Event

	// Distance is the cosine distance to the probe, ascending order means
	// more similar.
	Distance float64
}

// Recorder is the audit trail contract.
type Recorder interface {
	// Record appends one event and fills in its ID and CreatedAt.
	Record(ctx context.Context, ev *Event) error

	// Recent returns the latest events for a session, newest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Event, error)

	// Nearest returns the topK recorded events whose voiceprints are
	// closest to the probe by cosine distance, most similar first. Events
	// without a voiceprint are never matched.
	Nearest(ctx context.Context, voiceprint []float32, topK int) ([]Match, error)
}

// NewEvent flattens a decision into an audit event. The voiceprint is taken
// from the window that best supports the decided label; for rejections it
// falls back to the first window that carries an embedding.
func NewEvent(sessionID string, d auth.Decision) *Event {
	ev := &Event{
		SessionID: sessionID,
		Label:     d.Label,
		Success:   d.Success,
		Code:      string(d.Code),
		AvgProb:   d.AvgProb,
	}
	if d.Emotion != nil {
		ev.Emotion = d.Emotion.Label
	}

	if d.Quality != nil {
		ev.SNRdB = d.Quality.SNRdB
	} else if len(d.Windows) > 0 {
		min := d.Windows[0].SNRdB
		for _, w := range d.Windows[1:] {
			if w.SNRdB < min {
				min = w.SNRdB
			}
		}
		ev.SNRdB = min
	}

	bestScore := -1.0
	for _, w := range d.Windows {
		if w.Result == nil || w.Result.Embedding == nil {
			continue
		}
		switch {
		case d.Label != "" && w.Result.Label == d.Label && w.Result.Score > bestScore:
			bestScore = w.Result.Score
			ev.Voiceprint = w.Result.Embedding
		case ev.Voiceprint == nil && d.Label == "":
			ev.Voiceprint = w.Result.Embedding
		}
	}
	return ev
}
