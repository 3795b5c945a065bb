package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// newChain builds a two-backend group ("gpu-a" primary, "gpu-b" standby)
// where each entry's value is its own name.
func newChain(cb CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("gpu-a", "gpu-a", FallbackConfig{CircuitBreaker: cb})
	fg.AddFallback("gpu-b", "gpu-b")
	return fg
}

func TestFallbackGroup_StopsAtFirstSuccess(t *testing.T) {
	fg := newChain(CircuitBreakerConfig{MaxFailures: 3})
	if fg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", fg.Len())
	}

	var tried []string
	err := fg.Execute(context.Background(), func(_ context.Context, backend string) error {
		tried = append(tried, backend)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 1 || tried[0] != "gpu-a" {
		t.Fatalf("tried %v; want just gpu-a", tried)
	}
}

func TestFallbackGroup_TriesStandbyOnError(t *testing.T) {
	fg := newChain(CircuitBreakerConfig{MaxFailures: 3})

	var tried []string
	err := fg.Execute(context.Background(), func(_ context.Context, backend string) error {
		tried = append(tried, backend)
		if backend == "gpu-a" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 2 || tried[0] != "gpu-a" || tried[1] != "gpu-b" {
		t.Fatalf("tried %v; want gpu-a then gpu-b", tried)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := newChain(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(context.Background(), func(context.Context, string) error {
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !strings.Contains(err.Error(), errTest.Error()) {
		t.Errorf("err %q does not carry the last backend error", err)
	}
}

func TestFallbackGroup_OpenBreakerNeverCallsPrimary(t *testing.T) {
	fg := newChain(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	// Two failing rounds trip the primary's breaker.
	for range 2 {
		_ = fg.Execute(context.Background(), func(_ context.Context, backend string) error {
			if backend == "gpu-a" {
				return errTest
			}
			return nil
		})
	}

	var tried []string
	err := fg.Execute(context.Background(), func(_ context.Context, backend string) error {
		tried = append(tried, backend)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 1 || tried[0] != "gpu-b" {
		t.Fatalf("tried %v; want just gpu-b while gpu-a is open", tried)
	}

	states := fg.States()
	if states["gpu-a"] != StateOpen {
		t.Errorf("gpu-a state = %v, want open", states["gpu-a"])
	}
	if states["gpu-b"] != StateClosed {
		t.Errorf("gpu-b state = %v, want closed", states["gpu-b"])
	}
}

func TestFallbackGroup_PrimaryRecoversAfterReset(t *testing.T) {
	fg := newChain(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 15 * time.Millisecond,
		HalfOpenMax:  1,
	})

	// Trip the primary, then let the reset timeout pass.
	_ = fg.Execute(context.Background(), func(_ context.Context, backend string) error {
		if backend == "gpu-a" {
			return errTest
		}
		return nil
	})
	time.Sleep(30 * time.Millisecond)

	var tried []string
	err := fg.Execute(context.Background(), func(_ context.Context, backend string) error {
		tried = append(tried, backend)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 1 || tried[0] != "gpu-a" {
		t.Fatalf("tried %v; want the recovered gpu-a", tried)
	}
	if got := fg.States()["gpu-a"]; got != StateClosed {
		t.Errorf("gpu-a state after successful probe = %v, want closed", got)
	}
}

func TestFallbackGroup_PassesContextThrough(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	fg := newChain(CircuitBreakerConfig{MaxFailures: 3})
	err := fg.Execute(ctx, func(ctx context.Context, _ string) error {
		if v, _ := ctx.Value(ctxKey{}).(string); v != "marker" {
			t.Errorf("callback context lost the caller's value")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecuteWithResult(t *testing.T) {
	tests := []struct {
		name       string
		primaryErr bool
		bothErr    bool
		want       string
		wantErr    bool
	}{
		{name: "primary serves", want: "scores:gpu-a"},
		{name: "standby serves", primaryErr: true, want: "scores:gpu-b"},
		{name: "chain exhausted", bothErr: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newChain(CircuitBreakerConfig{MaxFailures: 3})
			got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, backend string) (string, error) {
				if tt.bothErr || (tt.primaryErr && backend == "gpu-a") {
					return "", errTest
				}
				return "scores:" + backend, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Fatalf("err = %v, want ErrAllFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteWithResult: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}
}
