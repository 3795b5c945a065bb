// Package tts defines the Provider interface for Text-to-Speech backends.
//
// voxgate uses synthesis for exactly one thing: rendering the greeting
// after a successful voice login. That is a single short utterance per
// authentication, so the interface is one-shot rather than streaming. The
// gateway ships the encoded audio to the client in the login result frame
// and treats synthesis failure as a soft error (the text greeting still
// goes out).
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as encoded audio (the container format is
	// implementation-defined, MP3 for the OpenAI backend). voice selects
	// the voice profile; an empty string means the provider default.
	// Returns an error if the voice is unknown or the backend fails.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
