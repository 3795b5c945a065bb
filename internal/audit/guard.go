package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Guard wraps a [Recorder] and makes all operations non-fatal. If the
// underlying recorder fails, operations return defaults and log warnings
// instead of propagating errors.
//
// This keeps the login path alive when the audit backend is temporarily
// unavailable (e.g., database restart, network partition). The IsDegraded
// method reports whether the recorder is currently experiencing failures.
//
// Guard implements [Recorder].
//
// All methods are safe for concurrent use.
type Guard struct {
	rec      Recorder
	degraded atomic.Bool
}

var _ Recorder = (*Guard)(nil)

// NewGuard creates a new [Guard] wrapping the given recorder.
func NewGuard(rec Recorder) *Guard {
	return &Guard{rec: rec}
}

// Record attempts to record the event. On failure the error is logged and
// swallowed; the recorder is marked as degraded. On success the degraded
// flag is cleared.
func (g *Guard) Record(ctx context.Context, ev *Event) error {
	err := g.rec.Record(ctx, ev)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("audit guard: Record failed, swallowing error",
			"session_id", ev.SessionID,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Recent attempts to read recent events. On failure an empty slice is
// returned and the recorder is marked as degraded.
func (g *Guard) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	events, err := g.rec.Recent(ctx, sessionID, limit)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("audit guard: Recent failed, returning empty",
			"session_id", sessionID,
			"error", err,
		)
		return []Event{}, nil
	}
	g.degraded.Store(false)
	return events, nil
}

// Nearest attempts a similar-voice query. On failure an empty slice is
// returned and the recorder is marked as degraded.
func (g *Guard) Nearest(ctx context.Context, voiceprint []float32, topK int) ([]Match, error) {
	matches, err := g.rec.Nearest(ctx, voiceprint, topK)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("audit guard: Nearest failed, returning empty", "error", err)
		return []Match{}, nil
	}
	g.degraded.Store(false)
	return matches, nil
}

// IsDegraded reports whether the recorder is currently operating in degraded
// mode (i.e., the most recent operation on the underlying recorder failed).
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
