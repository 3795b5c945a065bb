// Package mock provides a test double for the emotion.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/emotion"
)

// InferCall records a single invocation of Provider.Infer.
type InferCall struct {
	// PCM is a copy of the audio passed to Infer.
	PCM []byte

	// SampleRate is the rate passed to Infer.
	SampleRate int
}

// Provider is a mock implementation of emotion.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Infer call.
	Result emotion.Prediction

	// Err, if non-nil, is returned by every Infer call.
	Err error

	// InferCalls records every call to Infer in order.
	InferCalls []InferCall
}

// Infer records the call and returns Result, Err.
func (p *Provider) Infer(ctx context.Context, pcm []byte, sampleRate int) (emotion.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.InferCalls = append(p.InferCalls, InferCall{PCM: cp, SampleRate: sampleRate})
	if p.Err != nil {
		return emotion.Prediction{}, p.Err
	}
	return p.Result, nil
}

// CallCount reports how many times Infer has been invoked. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.InferCalls)
}

// ResetCalls clears all recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InferCalls = nil
}

// Ensure Provider implements emotion.Provider at compile time.
var _ emotion.Provider = (*Provider)(nil)
