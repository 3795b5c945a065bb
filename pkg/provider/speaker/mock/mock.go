// Package mock provides a test double for the speaker.Provider interface.
//
// Use Results to script one Classification per call (the last entry repeats
// once the queue is exhausted), Err to force a uniform failure, or
// ClassifyFunc to take over the call entirely. ClassifyCalls records every
// invocation for assertions.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/speaker"
)

// ClassifyCall records a single invocation of Provider.Classify.
type ClassifyCall struct {
	// PCM is a copy of the audio passed to Classify.
	PCM []byte

	// SampleRate is the rate passed to Classify.
	SampleRate int
}

// Provider is a mock implementation of speaker.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned one per call in order. When the queue runs out,
	// the last element repeats. Ignored when ClassifyFunc is set.
	Results []speaker.Classification

	// Err, if non-nil, is returned by every Classify call.
	Err error

	// ClassifyFunc, if non-nil, handles the call instead of Results/Err.
	ClassifyFunc func(ctx context.Context, pcm []byte, sampleRate int) (speaker.Classification, error)

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// EnrolledLabels is returned by Labels.
	EnrolledLabels []string

	// LabelsErr, if non-nil, is returned by Labels.
	LabelsErr error

	// HealthyErr, if non-nil, is returned by Healthy.
	HealthyErr error

	next int
}

// Classify records the call and returns the next scripted result.
func (p *Provider) Classify(ctx context.Context, pcm []byte, sampleRate int) (speaker.Classification, error) {
	p.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.ClassifyCalls = append(p.ClassifyCalls, ClassifyCall{PCM: cp, SampleRate: sampleRate})

	fn := p.ClassifyFunc
	if fn != nil {
		p.mu.Unlock()
		return fn(ctx, pcm, sampleRate)
	}

	defer p.mu.Unlock()
	if p.Err != nil {
		return speaker.Classification{}, p.Err
	}
	if len(p.Results) == 0 {
		return speaker.Classification{}, nil
	}
	idx := p.next
	if idx >= len(p.Results) {
		idx = len(p.Results) - 1
	}
	p.next++
	return p.Results[idx], nil
}

// Labels returns the scripted enrolled-label list.
func (p *Provider) Labels(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LabelsErr != nil {
		return nil, p.LabelsErr
	}
	return p.EnrolledLabels, nil
}

// Healthy returns the scripted probe result.
func (p *Provider) Healthy(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HealthyErr
}

// CallCount reports how many times Classify has been invoked. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ClassifyCalls)
}

// ResetCalls clears all recorded call history and rewinds the result queue.
// Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClassifyCalls = nil
	p.next = 0
}

// Ensure Provider implements speaker.Provider at compile time.
var _ speaker.Provider = (*Provider)(nil)
