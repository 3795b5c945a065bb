package gateway

import "github.com/voxgate/voxgate/internal/binding"

// Client frame types.
const (
	typeAudioStart = "audio_start"
	typeAudioChunk = "audio_chunk"
	typeAudioStop  = "audio_stop"
	typeBindLabel  = "bind_label"
	typeHeartbeat  = "heartbeat"
)

// Server frame types.
const (
	typeLoginStatus = "voice_login_status"
	typeLoginResult = "voice_login_result"
	typeBindResult  = "bind_result"
	typeError       = "error"
)

// Codecs accepted in audio_start. PCM16 chunks are raw little-endian
// samples; Opus chunks are one packet per frame.
const (
	codecPCM16 = "pcm16"
	codecOpus  = "opus"
)

// audio_stop modes. An absent mode means login.
const (
	modeLogin = "login"
	modeBind  = "bind"
)

const statusRecordingStarted = "recording_started"

// Gateway error codes. Engine rejection codes (NO_AUDIO, LOW_SNR, ...)
// pass through to the client verbatim.
const (
	errUnknownType  = "UNKNOWN_TYPE"
	errUnknownMode  = "UNKNOWN_MODE"
	errStart        = "START_ERROR"
	errChunk        = "CHUNK_ERROR"
	errUserNotBound = "USER_NOT_BOUND"
	errNotAwaiting  = "NOT_AWAITING"
	errBind         = "BIND_ERROR"
	errDirectory    = "DIRECTORY_ERROR"
)

// envelope is the part every client frame shares.
type envelope struct {
	Type string `json:"type"`
}

// audioStart opens a capture session for the connection's user. Channels
// may be 1 or 2; stereo chunks are downmixed before buffering.
type audioStart struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Codec      string `json:"codec,omitempty"`
}

// audioChunk appends one base64 payload to the capture buffer.
type audioChunk struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// audioStop ends the capture in the given mode.
type audioStop struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

// bindLabel submits a spoken or typed label name during a pending bind.
// DisplayName optionally sets how greetings address the user.
type bindLabel struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	DisplayName string `json:"display_name,omitempty"`
}

// loginStatus acknowledges a capture state change.
type loginStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// loginResult is the outcome of an audio_stop in login mode. On success
// User carries the bound account and Greeting/GreetingAudio the optional
// welcome line; on failure Error holds the code and Message a
// human-readable description.
type loginResult struct {
	Type    string  `json:"type"`
	Success bool    `json:"success"`
	User    string  `json:"user,omitempty"`
	Label   string  `json:"label,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
	Note    string  `json:"note,omitempty"`
	Error   string  `json:"error,omitempty"`
	Message string  `json:"message,omitempty"`

	Greeting string `json:"greeting,omitempty"`
	// GreetingAudio is base64 MP3, present when synthesis succeeded.
	GreetingAudio string `json:"greeting_audio,omitempty"`
}

// bindResult reports one binding-flow step. Status mirrors the flow
// outcome; Error is set instead when the step itself failed.
type bindResult struct {
	Type       string   `json:"type"`
	Status     string   `json:"status,omitempty"`
	Label      string   `json:"label,omitempty"`
	Available  []string `json:"available,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// errorFrame reports a protocol-level error.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// outcomeFrame maps a binding outcome onto the wire.
func outcomeFrame(out binding.Outcome) bindResult {
	return bindResult{
		Type:       typeBindResult,
		Status:     string(out.Status),
		Label:      out.Label,
		Available:  out.Available,
		Confidence: out.Confidence,
	}
}
