package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxgate/voxgate/pkg/provider/emotion"
	emomock "github.com/voxgate/voxgate/pkg/provider/emotion/mock"
)

func TestEmotionFallback_Infer_PrimarySuccess(t *testing.T) {
	primary := &emomock.Provider{
		Result: emotion.Prediction{Label: emotion.Happy, Confidence: 0.91},
	}
	secondary := &emomock.Provider{
		Result: emotion.Prediction{Label: emotion.Neutral, Confidence: 0.5},
	}

	fb := NewEmotionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Infer(context.Background(), []byte{1, 2}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != emotion.Happy {
		t.Fatalf("label = %q, want %q", got.Label, emotion.Happy)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestEmotionFallback_Infer_Failover(t *testing.T) {
	primary := &emomock.Provider{Err: errors.New("model server down")}
	secondary := &emomock.Provider{
		Result: emotion.Prediction{Label: emotion.Sad, Confidence: 0.7},
	}

	fb := NewEmotionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Infer(context.Background(), []byte{1, 2}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != emotion.Sad {
		t.Fatalf("label = %q, want %q", got.Label, emotion.Sad)
	}
}

func TestEmotionFallback_Infer_AllFail(t *testing.T) {
	primary := &emomock.Provider{Err: errors.New("down")}

	fb := NewEmotionFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := fb.Infer(context.Background(), []byte{1}, 16000)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
