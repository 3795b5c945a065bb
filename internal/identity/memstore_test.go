package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemDirectory_BindAndGet(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()
	ctx := context.Background()

	ident := &Identity{Label: "alice", UserID: "u-1", DisplayName: "Alice"}
	if err := dir.Bind(ctx, ident); err != nil {
		t.Fatalf("Bind() unexpected error: %v", err)
	}
	if ident.BoundAt.IsZero() {
		t.Error("Bind() should stamp BoundAt when unset")
	}

	got, err := dir.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got == nil || got.UserID != "u-1" {
		t.Errorf("Get() = %+v, want alice bound to u-1", got)
	}

	byUser, err := dir.GetByUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetByUser() unexpected error: %v", err)
	}
	if byUser == nil || byUser.Label != "alice" {
		t.Errorf("GetByUser() = %+v, want label alice", byUser)
	}
}

func TestMemDirectory_BindPreservesTimestamp(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()

	stamped := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	ident := &Identity{Label: "alice", UserID: "u-1", BoundAt: stamped}
	if err := dir.Bind(context.Background(), ident); err != nil {
		t.Fatalf("Bind() unexpected error: %v", err)
	}
	if !ident.BoundAt.Equal(stamped) {
		t.Errorf("BoundAt = %v, want preserved %v", ident.BoundAt, stamped)
	}
}

func TestMemDirectory_DuplicateLabel(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()
	ctx := context.Background()

	if err := dir.Bind(ctx, &Identity{Label: "alice", UserID: "u-1"}); err != nil {
		t.Fatalf("first Bind() unexpected error: %v", err)
	}
	err := dir.Bind(ctx, &Identity{Label: "alice", UserID: "u-2"})
	if !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("Bind() duplicate label error = %v, want ErrAlreadyBound", err)
	}
}

func TestMemDirectory_DuplicateUser(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()
	ctx := context.Background()

	if err := dir.Bind(ctx, &Identity{Label: "alice", UserID: "u-1"}); err != nil {
		t.Fatalf("first Bind() unexpected error: %v", err)
	}
	err := dir.Bind(ctx, &Identity{Label: "bob", UserID: "u-1"})
	if !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("Bind() duplicate user error = %v, want ErrAlreadyBound", err)
	}
}

func TestMemDirectory_GetAbsent(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()

	got, err := dir.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for unbound label", got)
	}

	byUser, err := dir.GetByUser(context.Background(), "u-404")
	if err != nil {
		t.Fatalf("GetByUser() unexpected error: %v", err)
	}
	if byUser != nil {
		t.Errorf("GetByUser() = %+v, want nil for unbound user", byUser)
	}
}

func TestMemDirectory_Unbind(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()
	ctx := context.Background()

	if err := dir.Bind(ctx, &Identity{Label: "alice", UserID: "u-1"}); err != nil {
		t.Fatalf("Bind() unexpected error: %v", err)
	}
	if err := dir.Unbind(ctx, "alice"); err != nil {
		t.Fatalf("Unbind() unexpected error: %v", err)
	}

	// Both indexes must release so the label and user can rebind.
	if err := dir.Bind(ctx, &Identity{Label: "alice", UserID: "u-1"}); err != nil {
		t.Errorf("rebind after Unbind() failed: %v", err)
	}

	// Unbinding an absent label is a no-op.
	if err := dir.Unbind(ctx, "nobody"); err != nil {
		t.Errorf("Unbind() absent label error = %v, want nil", err)
	}
}

func TestMemDirectory_ListSorted(t *testing.T) {
	t.Parallel()
	dir := NewMemDirectory()
	ctx := context.Background()

	for _, ident := range []*Identity{
		{Label: "mallory", UserID: "u-3"},
		{Label: "alice", UserID: "u-1"},
		{Label: "bob", UserID: "u-2"},
	} {
		if err := dir.Bind(ctx, ident); err != nil {
			t.Fatalf("Bind(%s) unexpected error: %v", ident.Label, err)
		}
	}

	idents, err := dir.List(ctx)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	want := []string{"alice", "bob", "mallory"}
	if len(idents) != len(want) {
		t.Fatalf("List() returned %d identities, want %d", len(idents), len(want))
	}
	for i, w := range want {
		if idents[i].Label != w {
			t.Errorf("List()[%d].Label = %q, want %q", i, idents[i].Label, w)
		}
	}
}
