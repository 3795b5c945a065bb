package audit

import (
	"context"
	"errors"
	"testing"
)

// mockRecorder is a controllable Recorder for guard tests.
type mockRecorder struct {
	recordErr     error
	recentErr     error
	nearestErr    error
	recentResult  []Event
	nearestResult []Match
	recordCalls   int
}

func (m *mockRecorder) Record(_ context.Context, _ *Event) error {
	m.recordCalls++
	return m.recordErr
}

func (m *mockRecorder) Recent(_ context.Context, _ string, _ int) ([]Event, error) {
	return m.recentResult, m.recentErr
}

func (m *mockRecorder) Nearest(_ context.Context, _ []float32, _ int) ([]Match, error) {
	return m.nearestResult, m.nearestErr
}

func TestGuard_Record(t *testing.T) {
	t.Run("successful record", func(t *testing.T) {
		rec := &mockRecorder{}
		g := NewGuard(rec)

		err := g.Record(context.Background(), &Event{SessionID: "s1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.IsDegraded() {
			t.Error("should not be degraded after successful record")
		}
		if rec.recordCalls != 1 {
			t.Errorf("expected 1 Record call, got %d", rec.recordCalls)
		}
	})

	t.Run("record failure is swallowed", func(t *testing.T) {
		rec := &mockRecorder{recordErr: errors.New("disk full")}
		g := NewGuard(rec)

		err := g.Record(context.Background(), &Event{SessionID: "s1"})
		if err != nil {
			t.Fatalf("expected nil error (swallowed), got %v", err)
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed record")
		}
	})

	t.Run("recovers after successful record", func(t *testing.T) {
		rec := &mockRecorder{recordErr: errors.New("temporary failure")}
		g := NewGuard(rec)

		_ = g.Record(context.Background(), &Event{})
		if !g.IsDegraded() {
			t.Error("should be degraded")
		}

		rec.recordErr = nil
		_ = g.Record(context.Background(), &Event{})
		if g.IsDegraded() {
			t.Error("should have recovered from degraded state")
		}
	})
}

func TestGuard_Recent(t *testing.T) {
	t.Run("successful read", func(t *testing.T) {
		rec := &mockRecorder{recentResult: []Event{{Label: "alice"}, {Label: "bob"}}}
		g := NewGuard(rec)

		got, err := g.Recent(context.Background(), "s1", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 events, got %d", len(got))
		}
	})

	t.Run("read failure returns empty slice", func(t *testing.T) {
		rec := &mockRecorder{recentErr: errors.New("connection refused")}
		g := NewGuard(rec)

		got, err := g.Recent(context.Background(), "s1", 10)
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty slice, got %d events", len(got))
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed read")
		}
	})
}

func TestGuard_Nearest(t *testing.T) {
	t.Run("successful query", func(t *testing.T) {
		rec := &mockRecorder{nearestResult: []Match{{Distance: 0.1}}}
		g := NewGuard(rec)

		got, err := g.Nearest(context.Background(), []float32{0.5}, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 match, got %d", len(got))
		}
	})

	t.Run("query failure returns empty slice", func(t *testing.T) {
		rec := &mockRecorder{nearestErr: errors.New("index corrupted")}
		g := NewGuard(rec)

		got, err := g.Nearest(context.Background(), []float32{0.5}, 3)
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty slice, got %d matches", len(got))
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed query")
		}
	})
}
