// Package emotion defines the Provider interface for speech emotion
// recognition backends.
//
// Emotion inference is an optional enrichment step: the decision engine
// runs it at most once per successful authentication, on the window that
// carried the decision. A failed emotion call never fails the
// authentication, so providers are free to be best-effort.
//
// Implementations must be safe for concurrent use.
package emotion

import "context"

// Canonical labels of the six-class recognition head.
const (
	Angry    = "angry"
	Fear     = "fear"
	Happy    = "happy"
	Neutral  = "neutral"
	Sad      = "sad"
	Surprise = "surprise"
)

// Provider is implemented by speech emotion recognition backends.
type Provider interface {
	// Infer predicts the emotional tone of one mono PCM16 window.
	Infer(ctx context.Context, pcm []byte, sampleRate int) (Prediction, error)
}

// Prediction is the outcome of one emotion inference.
type Prediction struct {
	// Label is the predicted emotion class.
	Label string

	// Confidence is the model's confidence in Label, in [0.0, 1.0].
	Confidence float64

	// Distribution maps every class to its probability, when the backend
	// exposes the full softmax. Nil otherwise.
	Distribution map[string]float64
}
