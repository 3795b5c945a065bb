// Package auth turns buffered session audio into an accept/reject speaker
// decision.
//
// # Pipeline
//
//  1. Authenticate takes ownership of the session buffer (the session is
//     consumed whether or not the attempt succeeds).
//  2. The buffer head is segmented into fixed-duration windows.
//  3. Every window's SNR is estimated and gated before a single classifier
//     call is made, so a LOW_SNR attempt costs zero model invocations.
//  4. Surviving windows are enhanced and classified concurrently.
//  5. The consensus rules combine the per-window results into one Decision:
//     plain agreement with score, margin, and average thresholds, or a
//     high-confidence override when windows disagree.
//  6. On success, emotion is inferred once on the representative window.
//     Emotion failures never fail the decision.
//
// The decision path is deterministic given classifier outputs. There is no
// randomness, no internal timer, and no background goroutine; concurrency
// exists only inside a single Authenticate call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/session"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/provider/emotion"
	"github.com/voxgate/voxgate/pkg/provider/speaker"
)

// Engine owns the session store and the decision thresholds. It is safe
// for concurrent use; independent sessions never block each other.
type Engine struct {
	cfg      Config
	store    *session.Store
	speakerP speaker.Provider
	emotionP emotion.Provider // nil = emotion skipped
	metrics  *observe.Metrics
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithConfig replaces the default thresholds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithEmotion sets an emotion provider to run once per successful decision.
// Without it, Decision.Emotion is always nil.
func WithEmotion(p emotion.Provider) Option {
	return func(e *Engine) { e.emotionP = p }
}

// WithMetrics overrides the metrics sink. The default is the process-wide
// instance from [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine over the given store and speaker classifier.
// The configuration is validated after options are applied.
func New(store *session.Store, speakerP speaker.Provider, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("auth: session store is required")
	}
	if speakerP == nil {
		return nil, errors.New("auth: speaker provider is required")
	}
	e := &Engine{
		cfg:      DefaultConfig(),
		store:    store,
		speakerP: speakerP,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth: invalid config: %w", err)
	}
	return e, nil
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Start begins a fresh capture for the session, discarding any buffered
// audio. A non-positive sampleRate falls back to the configured default.
func (e *Engine) Start(id string, sampleRate int) {
	e.store.Start(id, sampleRate)
}

// Append adds captured PCM bytes to the session in arrival order, creating
// the session at the default sample rate if Start was never called.
// Returns the buffered length after the append.
func (e *Engine) Append(id string, chunk []byte) int {
	return e.store.Append(id, chunk)
}

// Clear drops the session and its buffer. Clearing an unknown session is
// a no-op.
func (e *Engine) Clear(id string) {
	e.store.Clear(id)
}

// Authenticate consumes the session's buffered audio and produces a
// Decision. Every failure is a typed code on the Decision, never an error;
// callers branch on Decision.Code.
func (e *Engine) Authenticate(ctx context.Context, id string) Decision {
	start := time.Now()
	d := e.decide(ctx, id)
	e.metrics.RecordDecision(ctx, d.Success, string(d.Code), time.Since(start))
	if d.Success {
		slog.Info("auth: decision accepted",
			"session", id, "label", d.Label, "avg_prob", d.AvgProb,
			"windows", len(d.Windows), "note", d.Note,
			"elapsed", time.Since(start))
	} else {
		slog.Info("auth: decision rejected",
			"session", id, "code", d.Code, "elapsed", time.Since(start))
	}
	return d
}

func (e *Engine) decide(ctx context.Context, id string) Decision {
	snap, ok := e.store.Take(id)
	if !ok || len(snap.Buffer) == 0 {
		return Decision{Code: CodeNoAudio}
	}

	windowBytes := e.cfg.WindowSeconds * snap.SampleRate * audio.BytesPerSample
	needBytes := windowBytes * e.cfg.RequiredWindows
	if len(snap.Buffer) < needBytes {
		return Decision{
			Code:      CodeAudioTooShort,
			Shortfall: &Shortfall{NeedBytes: needBytes, GotBytes: len(snap.Buffer)},
		}
	}

	windows := audio.Windows(snap.Buffer, e.cfg.RequiredWindows, windowBytes)

	// Gate every window before the first classifier call. An attempt that
	// fails here must cost zero model invocations.
	outcomes := make([]WindowOutcome, len(windows))
	for i, w := range windows {
		snr := audio.EstimateSNR(w)
		outcomes[i] = WindowOutcome{Index: i, SNRdB: snr}
		e.metrics.RecordWindowSNR(ctx, snr)
	}
	for i := range outcomes {
		if outcomes[i].SNRdB < e.cfg.MinSNRdB {
			return Decision{
				Code:    CodeLowSNR,
				Windows: outcomes,
				Quality: &QualityReport{WindowIndex: i, SNRdB: outcomes[i].SNRdB},
			}
		}
	}

	enhanced := make([][]byte, len(windows))
	for i, w := range windows {
		enhanced[i] = audio.Enhance(w)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)
	for i := range enhanced {
		g.Go(func() error {
			t0 := time.Now()
			res, err := e.speakerP.Classify(gctx, enhanced[i], snap.SampleRate)
			e.metrics.RecordClassify(gctx, time.Since(t0), err)
			if err != nil {
				outcomes[i].Err = err.Error()
				return err
			}
			outcomes[i].Result = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("auth: classifier failed", "session", id, "err", err)
		return Decision{Code: CodeModelError, Windows: outcomes}
	}

	d, repIdx := e.resolve(outcomes)
	d.Windows = outcomes
	if d.Success && e.emotionP != nil {
		d.Emotion = e.inferEmotion(ctx, id, enhanced[repIdx], snap.SampleRate)
	}
	return d
}

// resolve applies the consensus rules to fully classified windows and
// returns the decision plus the index of the representative window
// (the override window, or the best-scoring agreeing window; lowest index
// wins ties). repIdx is -1 on rejection. All threshold comparisons are
// inclusive.
func (e *Engine) resolve(outcomes []WindowOutcome) (d Decision, repIdx int) {
	best := 0
	agree := true
	var sum float64
	for i, o := range outcomes {
		sum += o.Result.Score
		if o.Result.Label != outcomes[0].Result.Label {
			agree = false
		}
		if o.Result.Score > outcomes[best].Result.Score {
			best = i
		}
	}
	avg := sum / float64(len(outcomes))

	if !agree {
		b := outcomes[best].Result
		fires := b.Score >= e.cfg.OverrideProb && b.Margin >= e.cfg.OverrideMargin
		for i, o := range outcomes {
			if i != best && o.Result.Score > e.cfg.OverrideOthersMax {
				fires = false
			}
		}
		if fires {
			return Decision{
				Success: true,
				Label:   b.Label,
				AvgProb: avg,
				Note:    NoteOverride,
			}, best
		}
		return Decision{Code: CodeInconsistentWindows}, -1
	}

	for _, o := range outcomes {
		if o.Result.Score < e.cfg.MinProb || o.Result.Margin < e.cfg.MinMargin {
			return Decision{Code: CodeThresholdNotMet, AvgProb: avg}, -1
		}
	}
	if avg < e.cfg.MinProb {
		return Decision{Code: CodeThresholdNotMet, AvgProb: avg}, -1
	}
	return Decision{
		Success: true,
		Label:   outcomes[0].Result.Label,
		AvgProb: avg,
	}, best
}

// inferEmotion runs the emotion provider on the representative window.
// Failures are swallowed: a broken emotion model must never turn a
// successful identity decision into a failure.
func (e *Engine) inferEmotion(ctx context.Context, id string, pcm []byte, sampleRate int) *emotion.Prediction {
	t0 := time.Now()
	pred, err := e.emotionP.Infer(ctx, pcm, sampleRate)
	e.metrics.RecordEmotion(ctx, time.Since(t0), err)
	if err != nil {
		slog.Warn("auth: emotion inference failed, continuing without it",
			"session", id, "err", err)
		return nil
	}
	return &pred
}
