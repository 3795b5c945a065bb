package audit_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxgate/voxgate/internal/audit"
)

const testVoiceprintDim = 3

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXGATE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXGATE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [audit.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *audit.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS auth_events CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := audit.NewStore(ctx, dsn, testVoiceprintDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []*audit.Event{
		{SessionID: "sess-1", Label: "alice", Success: true, AvgProb: 0.84, SNRdB: 18.0, Emotion: "happy"},
		{SessionID: "sess-1", Code: "THRESHOLD_NOT_MET", AvgProb: 0.61, SNRdB: 14.0},
		{SessionID: "sess-2", Label: "bob", Success: true, AvgProb: 0.97},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if ev.ID == 0 {
			t.Error("Record should assign a nonzero ID")
		}
		if ev.CreatedAt.IsZero() {
			t.Error("Record should assign CreatedAt")
		}
	}

	got, err := store.Recent(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].Code != "THRESHOLD_NOT_MET" || got[1].Label != "alice" {
		t.Errorf("Recent order = [%+v, %+v], want rejection then success", got[0], got[1])
	}

	empty, err := store.Recent(ctx, "sess-404", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Recent for unknown session = %v, want empty non-nil slice", empty)
	}
}

func TestStore_NearestOrdersByCosineDistance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ev := range []*audit.Event{
		{SessionID: "s", Label: "exact", Success: true, Voiceprint: []float32{1, 0, 0}},
		{SessionID: "s", Label: "orthogonal", Success: true, Voiceprint: []float32{0, 1, 0}},
		{SessionID: "s", Label: "close", Success: true, Voiceprint: []float32{0.9, 0.1, 0}},
	} {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	matches, err := store.Nearest(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Nearest returned %d matches, want 3", len(matches))
	}

	wantOrder := []string{"exact", "close", "orthogonal"}
	for i, want := range wantOrder {
		if matches[i].Event.Label != want {
			t.Errorf("matches[%d].Label = %q, want %q", i, matches[i].Event.Label, want)
		}
	}
	if matches[0].Distance > matches[1].Distance || matches[1].Distance > matches[2].Distance {
		t.Errorf("distances %v not ascending", []float64{
			matches[0].Distance, matches[1].Distance, matches[2].Distance,
		})
	}
}

func TestStore_NearestSkipsEventsWithoutVoiceprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, &audit.Event{SessionID: "s", Code: "LOW_SNR"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, &audit.Event{
		SessionID: "s", Label: "alice", Success: true, Voiceprint: []float32{0, 0, 1},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	matches, err := store.Nearest(ctx, []float32{0, 0, 1}, 10)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Nearest returned %d matches, want 1 (null voiceprints excluded)", len(matches))
	}
	if matches[0].Event.Label != "alice" {
		t.Errorf("match label = %q, want alice", matches[0].Event.Label)
	}
}
