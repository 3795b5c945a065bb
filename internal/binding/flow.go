package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/identity"
	"github.com/voxgate/voxgate/internal/observe"
)

// DefaultExpiry is how long a pending bind waits for a label before the
// flow silently returns the user to idle.
const DefaultExpiry = 300 * time.Second

// ErrNotAwaiting is returned by Submit when the user has no pending bind,
// either because Begin was never called or because the wait expired.
var ErrNotAwaiting = errors.New("binding: no pending bind")

// Status classifies the outcome of one binding-flow step.
type Status string

const (
	// StatusAlreadyBound means the user already holds a label; the flow
	// was not entered.
	StatusAlreadyBound Status = "already_bound"

	// StatusPrompt means the flow is now waiting for the user to name a
	// label from the available list.
	StatusPrompt Status = "prompt"

	// StatusUnknownLabel means the submitted name resolved to no enrolled
	// label. The flow keeps waiting so the user can retry.
	StatusUnknownLabel Status = "unknown_label"

	// StatusLabelTaken means the resolved label belongs to another user.
	// The flow keeps waiting so the user can pick a different one.
	StatusLabelTaken Status = "label_taken"

	// StatusBound means the binding succeeded and the flow is done.
	StatusBound Status = "bound"
)

// Outcome is the result of one binding-flow step.
type Outcome struct {
	Status Status `json:"status"`

	// Label is the resolved enrolled label, set for already_bound,
	// label_taken and bound outcomes.
	Label string `json:"label,omitempty"`

	// Available lists the enrolled labels the user may pick, set for
	// prompt and unknown_label outcomes.
	Available []string `json:"available,omitempty"`

	// Confidence is the label resolution confidence, 1 for exact matches.
	// Set alongside Label for label_taken and bound outcomes.
	Confidence float64 `json:"confidence,omitempty"`
}

// LabelLister enumerates the labels the speaker backend can recognize.
// Only those labels are worth binding: a label the model cannot produce
// would never authenticate.
type LabelLister interface {
	Labels(ctx context.Context) ([]string, error)
}

// FlowOption is a functional option for configuring a [Flow].
type FlowOption func(*Flow)

// WithExpiry sets how long a pending bind waits for a label submission.
// Default: [DefaultExpiry].
func WithExpiry(d time.Duration) FlowOption {
	return func(f *Flow) { f.expiry = d }
}

// WithMatcher replaces the label matcher, e.g. to tune its thresholds.
func WithMatcher(m *Matcher) FlowOption {
	return func(f *Flow) { f.matcher = m }
}

// WithMetrics sets the metrics sink for bind outcomes.
func WithMetrics(m *observe.Metrics) FlowOption {
	return func(f *Flow) { f.metrics = m }
}

// withClock overrides the time source for expiry tests.
func withClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// Flow is the per-user enrollment state machine. A user is either idle or
// awaiting a label; pending waits expire after the configured duration.
//
// All methods are safe for concurrent use.
type Flow struct {
	dir     identity.Directory
	labels  LabelLister
	matcher *Matcher
	expiry  time.Duration
	metrics *observe.Metrics

	mu      sync.Mutex
	pending map[string]time.Time
	now     func() time.Time
}

// NewFlow creates an enrollment flow over the given directory and label
// source.
func NewFlow(dir identity.Directory, labels LabelLister, opts ...FlowOption) (*Flow, error) {
	if dir == nil {
		return nil, errors.New("binding: identity directory is required")
	}
	if labels == nil {
		return nil, errors.New("binding: label lister is required")
	}
	f := &Flow{
		dir:     dir,
		labels:  labels,
		matcher: NewMatcher(),
		expiry:  DefaultExpiry,
		metrics: observe.DefaultMetrics(),
		pending: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Begin starts the enrollment flow for userID. Users who already hold a
// label are turned away without entering the flow; everyone else moves to
// awaiting-label and receives the list of enrolled labels to pick from.
// Calling Begin while already awaiting restarts the wait.
func (f *Flow) Begin(ctx context.Context, userID string) (Outcome, error) {
	existing, err := f.dir.GetByUser(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("binding: check existing binding: %w", err)
	}
	if existing != nil {
		slog.Info("binding: user already bound", "user_id", userID, "label", existing.Label)
		return Outcome{Status: StatusAlreadyBound, Label: existing.Label}, nil
	}

	available, err := f.labels.Labels(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("binding: list enrolled labels: %w", err)
	}

	f.mu.Lock()
	f.pending[userID] = f.now()
	f.mu.Unlock()

	slog.Info("binding: awaiting label", "user_id", userID, "available", len(available))
	return Outcome{Status: StatusPrompt, Available: available}, nil
}

// Submit resolves the user's spoken or typed label name and attempts the
// binding. It returns [ErrNotAwaiting] when the user has no pending bind.
//
// Unknown names and labels held by someone else keep the flow in
// awaiting-label so the user can retry; success and hard errors end it.
func (f *Flow) Submit(ctx context.Context, userID, displayName, input string) (Outcome, error) {
	if !f.Awaiting(userID) {
		return Outcome{}, ErrNotAwaiting
	}

	available, err := f.labels.Labels(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("binding: list enrolled labels: %w", err)
	}

	label, confidence, ok := f.matcher.Resolve(input, available)
	if !ok {
		slog.Info("binding: label not resolved", "user_id", userID, "input", input)
		f.metrics.RecordBind(ctx, string(StatusUnknownLabel))
		return Outcome{Status: StatusUnknownLabel, Available: available}, nil
	}

	holder, err := f.dir.Get(ctx, label)
	if err != nil {
		f.Cancel(userID)
		return Outcome{}, fmt.Errorf("binding: check label holder: %w", err)
	}
	if holder != nil && holder.UserID != userID {
		slog.Info("binding: label taken", "user_id", userID, "label", label)
		f.metrics.RecordBind(ctx, string(StatusLabelTaken))
		return Outcome{Status: StatusLabelTaken, Label: label, Confidence: confidence}, nil
	}

	err = f.dir.Bind(ctx, &identity.Identity{
		Label:       label,
		UserID:      userID,
		DisplayName: displayName,
	})
	if err != nil {
		// A concurrent bind can still race us to the label.
		if errors.Is(err, identity.ErrAlreadyBound) {
			slog.Info("binding: label taken", "user_id", userID, "label", label)
			f.metrics.RecordBind(ctx, string(StatusLabelTaken))
			return Outcome{Status: StatusLabelTaken, Label: label, Confidence: confidence}, nil
		}
		f.Cancel(userID)
		f.metrics.RecordBind(ctx, "error")
		return Outcome{}, fmt.Errorf("binding: bind: %w", err)
	}

	f.Cancel(userID)
	f.metrics.RecordBind(ctx, string(StatusBound))
	slog.Info("binding: bound", "user_id", userID, "label", label, "confidence", confidence)
	return Outcome{Status: StatusBound, Label: label, Confidence: confidence}, nil
}

// Awaiting reports whether userID has a live pending bind. Expired waits
// are cleaned up on the way.
func (f *Flow) Awaiting(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entered, ok := f.pending[userID]
	if !ok {
		return false
	}
	if f.now().Sub(entered) > f.expiry {
		delete(f.pending, userID)
		slog.Info("binding: pending bind expired", "user_id", userID)
		return false
	}
	return true
}

// Cancel drops any pending bind for userID. It is a no-op for idle users.
func (f *Flow) Cancel(userID string) {
	f.mu.Lock()
	delete(f.pending, userID)
	f.mu.Unlock()
}
