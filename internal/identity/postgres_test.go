package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// Migrate tests
// ---------------------------------------------------------------------------

func TestPostgresDirectory_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				if !strings.Contains(sql, "CREATE TABLE") {
					t.Errorf("Migrate SQL should contain CREATE TABLE, got: %s", sql)
				}
				return pgconn.CommandTag{}, nil
			},
		}
		if err := NewPostgresDirectory(db).Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection refused")
			},
		}
		err := NewPostgresDirectory(db).Migrate(context.Background())
		if err == nil {
			t.Fatal("Migrate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "identity: migrate:") {
			t.Errorf("error = %q, want prefix 'identity: migrate:'", err.Error())
		}
	})
}

// ---------------------------------------------------------------------------
// Bind tests
// ---------------------------------------------------------------------------

func TestPostgresDirectory_Bind(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		var capturedSQL string
		var capturedArgs []any

		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				capturedSQL = sql
				capturedArgs = args
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*time.Time)) = fixedTime
						return nil
					},
				}
			},
		}

		ident := &Identity{Label: "alice", UserID: "u-1", DisplayName: "Alice"}
		if err := NewPostgresDirectory(db).Bind(context.Background(), ident); err != nil {
			t.Fatalf("Bind() unexpected error: %v", err)
		}

		if !strings.Contains(capturedSQL, "INSERT INTO voice_identities") {
			t.Errorf("SQL should contain INSERT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 3 {
			t.Fatalf("expected 3 args, got %d", len(capturedArgs))
		}
		if capturedArgs[0] != "alice" || capturedArgs[1] != "u-1" {
			t.Errorf("args = %v, want label then user", capturedArgs)
		}
		if ident.BoundAt != fixedTime {
			t.Errorf("BoundAt = %v, want %v", ident.BoundAt, fixedTime)
		}
	})

	t.Run("unique violation maps to ErrAlreadyBound", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{
					scanFunc: func(_ ...any) error {
						return &pgconn.PgError{Code: "23505"}
					},
				}
			},
		}
		err := NewPostgresDirectory(db).Bind(context.Background(), &Identity{Label: "alice", UserID: "u-1"})
		if !errors.Is(err, ErrAlreadyBound) {
			t.Errorf("Bind() error = %v, want ErrAlreadyBound", err)
		}
	})

	t.Run("other error passes through", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error {
					return errors.New("connection reset")
				}}
			},
		}
		err := NewPostgresDirectory(db).Bind(context.Background(), &Identity{Label: "alice", UserID: "u-1"})
		if err == nil || errors.Is(err, ErrAlreadyBound) {
			t.Errorf("Bind() error = %v, want plain failure", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Get tests
// ---------------------------------------------------------------------------

func TestPostgresDirectory_Get(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				if !strings.Contains(sql, "WHERE label = $1") {
					t.Errorf("SQL should filter by label, got: %s", sql)
				}
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*string)) = "alice"
					*(dest[1].(*string)) = "u-1"
					*(dest[2].(*string)) = "Alice"
					*(dest[3].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		ident, err := NewPostgresDirectory(db).Get(context.Background(), "alice")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if ident == nil || ident.UserID != "u-1" || ident.Name() != "Alice" {
			t.Errorf("Get() = %+v, want alice bound to u-1", ident)
		}
	})

	t.Run("absent returns nil, nil", func(t *testing.T) {
		t.Parallel()
		ident, err := NewPostgresDirectory(&mockDB{}).Get(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if ident != nil {
			t.Errorf("Get() = %+v, want nil for unbound label", ident)
		}
	})

	t.Run("by user", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				if !strings.Contains(sql, "WHERE user_id = $1") {
					t.Errorf("SQL should filter by user_id, got: %s", sql)
				}
				return &mockRow{scanFunc: func(dest ...any) error {
					*(dest[0].(*string)) = "alice"
					*(dest[1].(*string)) = "u-1"
					*(dest[2].(*string)) = ""
					*(dest[3].(*time.Time)) = fixedTime
					return nil
				}}
			},
		}
		ident, err := NewPostgresDirectory(db).GetByUser(context.Background(), "u-1")
		if err != nil {
			t.Fatalf("GetByUser() unexpected error: %v", err)
		}
		if ident == nil || ident.Label != "alice" {
			t.Errorf("GetByUser() = %+v, want label alice", ident)
		}
		if ident.Name() != "alice" {
			t.Errorf("Name() = %q, want label fallback when display name empty", ident.Name())
		}
	})
}

// ---------------------------------------------------------------------------
// Unbind and List tests
// ---------------------------------------------------------------------------

func TestPostgresDirectory_Unbind(t *testing.T) {
	t.Parallel()
	var capturedSQL string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			return pgconn.CommandTag{}, nil
		},
	}
	if err := NewPostgresDirectory(db).Unbind(context.Background(), "alice"); err != nil {
		t.Fatalf("Unbind() unexpected error: %v", err)
	}
	if !strings.Contains(capturedSQL, "DELETE FROM voice_identities") {
		t.Errorf("SQL should contain DELETE, got: %s", capturedSQL)
	}
}

func TestPostgresDirectory_List(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := &mockRows{data: [][]any{
		{"alice", "u-1", "Alice", fixedTime},
		{"bob", "u-2", "", fixedTime},
	}}
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY label") {
				t.Errorf("SQL should order by label, got: %s", sql)
			}
			return rows, nil
		},
	}

	idents, err := NewPostgresDirectory(db).List(context.Background())
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(idents) != 2 {
		t.Fatalf("List() returned %d identities, want 2", len(idents))
	}
	if idents[0].Label != "alice" || idents[1].Label != "bob" {
		t.Errorf("List() = %+v, want alice then bob", idents)
	}
	if !rows.closed {
		t.Error("List() did not close rows")
	}
}
