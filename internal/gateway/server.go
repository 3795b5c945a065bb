// Package gateway serves the websocket voice-login protocol.
//
// One connection carries one client, identified by the user query
// parameter of the upgrade request. JSON text frames drive a capture
// session: audio_start opens it, audio_chunk appends base64 audio (PCM16
// or Opus, mono or stereo, normalized to the engine format as needed),
// audio_stop closes it in login or bind mode. Login runs the decision engine and answers with
// a voice_login_result, optionally carrying a synthesized greeting. Bind
// authenticates the capture and ties the recognized speaker label to the
// connection's user; bind_label resolves a client-named label during a
// pending bind instead.
//
// Frames are handled strictly in arrival order on one goroutine per
// connection, so a chunk can never race its own audio_stop.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxgate/voxgate/internal/audit"
	"github.com/voxgate/voxgate/internal/auth"
	"github.com/voxgate/voxgate/internal/binding"
	"github.com/voxgate/voxgate/internal/identity"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/welcome"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/audio/opus"
)

// maxFrameBytes caps a single websocket frame. One second of 48 kHz PCM16
// is 96 kB before base64, so 1 MiB fits any sane chunking while keeping a
// hostile client from ballooning server memory.
const maxFrameBytes = 1 << 20

// Keepalive pings ride alongside the JSON frames. A connection that
// misses one pong is closed; the client is expected to reconnect.
const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithGreeter enables the post-login greeting on successful results.
func WithGreeter(g *welcome.Greeter) Option {
	return func(s *Server) { s.greeter = g }
}

// WithAudit sets the audit trail every decision is recorded to. Recording
// is best-effort and never affects the client-visible outcome.
func WithAudit(rec audit.Recorder) Option {
	return func(s *Server) { s.trail = rec }
}

// WithOriginPatterns restricts the Origin headers accepted during the
// websocket upgrade. Default: any origin.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server upgrades websocket connections and speaks the voice-login
// protocol over them. It is read-only after construction and safe for
// concurrent use.
type Server struct {
	engine  *auth.Engine
	dir     identity.Directory
	flow    *binding.Flow
	greeter *welcome.Greeter
	trail   audit.Recorder
	origins []string
	metrics *observe.Metrics

	// target is the engine's PCM format (mono at the configured rate);
	// every chunk is normalized to it before buffering.
	target audio.Format
}

// New constructs a gateway over the decision engine, the identity
// directory, and the enrollment flow.
func New(engine *auth.Engine, dir identity.Directory, flow *binding.Flow, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("gateway: auth engine is required")
	}
	if dir == nil {
		return nil, errors.New("gateway: identity directory is required")
	}
	if flow == nil {
		return nil, errors.New("gateway: binding flow is required")
	}
	s := &Server{
		engine:  engine,
		dir:     dir,
		flow:    flow,
		origins: []string{"*"},
		metrics: observe.DefaultMetrics(),
		target:  audio.Format{SampleRate: engine.Config().SampleRate, Channels: 1},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Register mounts the websocket endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

// capture is the per-connection decode state. audio_start resets the
// codec and source format; the converter and its first-mismatch warnings
// live for the whole connection.
type capture struct {
	codec string
	src   audio.Format
	dec   *opus.Decoder
	conv  *audio.Converter
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		// Voice login needs no prior account; anonymous clients get a
		// generated session key.
		userID = anonID()
		slog.Info("gateway: anonymous connection", "user_id", userID)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		slog.Error("gateway: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	slog.Info("gateway: client connected", "user_id", userID, "remote", r.RemoteAddr)
	s.metrics.RecordConnection(ctx, 1)
	defer func() {
		// Connection close aborts the capture. A pending bind survives so
		// the user can reconnect and finish naming a label.
		s.engine.Clear(userID)
		s.metrics.RecordConnection(context.Background(), -1)
		slog.Info("gateway: client disconnected", "user_id", userID)
	}()

	go s.keepalive(ctx, conn, userID)

	st := &capture{codec: codecPCM16, src: s.target, conv: &audio.Converter{Target: s.target}}
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			slog.Debug("gateway: read ended", "user_id", userID, "err", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.reply(ctx, conn, errorFrame{Type: typeError, Error: errUnknownType})
			continue
		}

		switch env.Type {
		case typeAudioStart:
			s.handleStart(ctx, conn, userID, st, raw)
		case typeAudioChunk:
			s.handleChunk(ctx, conn, userID, st, raw)
		case typeAudioStop:
			s.handleStop(ctx, conn, userID, raw)
		case typeBindLabel:
			s.handleBindLabel(ctx, conn, userID, raw)
		case typeHeartbeat:
			// Some clients send application-level heartbeats on top of
			// the protocol pings. Accept and drop them.
			slog.Debug("gateway: heartbeat", "user_id", userID)
		default:
			s.reply(ctx, conn, errorFrame{Type: typeError, Error: errUnknownType})
		}
	}
}

// handleStart resets the capture state and opens a fresh session,
// discarding any previously buffered audio.
func (s *Server) handleStart(ctx context.Context, conn *websocket.Conn, userID string, st *capture, raw json.RawMessage) {
	var f audioStart
	if err := json.Unmarshal(raw, &f); err != nil {
		s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errStart, Message: "malformed audio_start"})
		return
	}

	codec := f.Codec
	if codec == "" {
		codec = codecPCM16
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = s.target.SampleRate
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels > 2 {
		s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errStart, Message: fmt.Sprintf("unsupported channel count %d", channels)})
		return
	}

	st.codec = codec
	st.src = audio.Format{SampleRate: rate, Channels: channels}
	st.dec = nil
	switch codec {
	case codecPCM16:
	case codecOpus:
		dec, err := opus.NewDecoder(rate, channels)
		if err != nil {
			s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errStart, Message: err.Error()})
			return
		}
		st.dec = dec
	default:
		s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errStart, Message: fmt.Sprintf("unsupported codec %q", codec)})
		return
	}

	s.engine.Start(userID, s.target.SampleRate)
	slog.Info("gateway: capture started", "user_id", userID, "codec", codec, "sample_rate", rate, "channels", channels)
	s.reply(ctx, conn, loginStatus{Type: typeLoginStatus, Status: statusRecordingStarted})
}

// handleChunk decodes one payload and appends it to the session buffer.
// Bad chunks are reported but do not end the capture; the client may keep
// streaming.
func (s *Server) handleChunk(ctx context.Context, conn *websocket.Conn, userID string, st *capture, raw json.RawMessage) {
	var f audioChunk
	if err := json.Unmarshal(raw, &f); err != nil || f.Data == "" {
		s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errChunk, Message: "malformed audio_chunk"})
		return
	}

	pcm, err := s.decodeChunk(st, f.Data)
	if err != nil {
		slog.Warn("gateway: chunk rejected", "user_id", userID, "err", err)
		s.reply(ctx, conn, loginResult{Type: typeLoginResult, Error: errChunk, Message: err.Error()})
		return
	}

	n := s.engine.Append(userID, pcm)
	s.metrics.RecordIngestedBytes(ctx, len(pcm))
	slog.Debug("gateway: chunk buffered", "user_id", userID, "chunk_bytes", len(pcm), "buffered", n)
}

// decodeChunk turns one base64 payload into PCM16 mono at the engine
// rate: base64, then the codec, then the format converter.
func (s *Server) decodeChunk(st *capture, data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("gateway: chunk is not valid base64: %w", err)
	}
	pcm, src := raw, st.src
	if st.codec == codecOpus {
		if pcm, err = st.dec.Decode(raw); err != nil {
			return nil, err
		}
		src = st.dec.Format()
	}
	out := st.conv.Convert(pcm, src)
	if len(out) == 0 && len(pcm) > 0 {
		return nil, errors.New("gateway: chunk yielded no usable audio")
	}
	return out, nil
}

// handleStop ends the capture in the requested mode.
func (s *Server) handleStop(ctx context.Context, conn *websocket.Conn, userID string, raw json.RawMessage) {
	var f audioStop
	if err := json.Unmarshal(raw, &f); err != nil {
		s.engine.Clear(userID)
		s.reply(ctx, conn, errorFrame{Type: typeError, Error: errUnknownMode})
		return
	}
	switch f.Mode {
	case modeLogin, "":
		s.finishLogin(ctx, conn, userID)
	case modeBind:
		s.finishBind(ctx, conn, userID)
	default:
		s.engine.Clear(userID)
		s.reply(ctx, conn, errorFrame{Type: typeError, Error: errUnknownMode})
	}
}

// finishLogin consumes the capture, runs the decision, and reports the
// outcome. A recognized voice with no directory binding becomes a
// USER_NOT_BOUND result followed by an opened binding flow, so the client
// can continue straight into bind_label.
func (s *Server) finishLogin(ctx context.Context, conn *websocket.Conn, userID string) {
	d := s.engine.Authenticate(ctx, userID)
	s.record(ctx, userID, d)

	if !d.Success {
		s.reply(ctx, conn, loginResult{
			Type:    typeLoginResult,
			Error:   string(d.Code),
			Score:   d.AvgProb,
			Message: d.Code.Message(),
		})
		return
	}

	ident, err := s.dir.Get(ctx, d.Label)
	if err != nil {
		slog.Error("gateway: directory lookup failed", "user_id", userID, "label", d.Label, "err", err)
		s.reply(ctx, conn, loginResult{
			Type:    typeLoginResult,
			Error:   errDirectory,
			Message: "identity lookup failed, try again later",
		})
		return
	}
	if ident == nil {
		slog.Info("gateway: voice recognized but unbound", "user_id", userID, "label", d.Label)
		s.reply(ctx, conn, loginResult{
			Type:    typeLoginResult,
			Label:   d.Label,
			Score:   d.AvgProb,
			Error:   errUserNotBound,
			Message: "this voice is not bound to any account",
		})
		out, err := s.flow.Begin(ctx, userID)
		if err != nil {
			slog.Warn("gateway: could not open binding flow", "user_id", userID, "err", err)
			return
		}
		s.reply(ctx, conn, outcomeFrame(out))
		return
	}

	emo := ""
	if d.Emotion != nil {
		emo = d.Emotion.Label
	}
	res := loginResult{
		Type:    typeLoginResult,
		Success: true,
		User:    ident.UserID,
		Label:   d.Label,
		Score:   d.AvgProb,
		Emotion: emo,
		Note:    d.Note,
	}
	if s.greeter != nil {
		text, speech := s.greeter.Greet(ctx, ident.Name(), emo)
		res.Greeting = text
		if len(speech) > 0 {
			res.GreetingAudio = base64.StdEncoding.EncodeToString(speech)
		}
	}
	s.reply(ctx, conn, res)
}

// finishBind authenticates the capture and binds the recognized label to
// the connection's user. The classifier, not the client, names the label
// here; the flow still arbitrates taken labels and already-bound users.
func (s *Server) finishBind(ctx context.Context, conn *websocket.Conn, userID string) {
	d := s.engine.Authenticate(ctx, userID)
	s.record(ctx, userID, d)

	if !d.Success {
		s.reply(ctx, conn, bindResult{
			Type:    typeBindResult,
			Error:   string(d.Code),
			Message: d.Code.Message(),
		})
		return
	}

	out, err := s.flow.Begin(ctx, userID)
	if err != nil {
		slog.Error("gateway: binding begin failed", "user_id", userID, "err", err)
		s.reply(ctx, conn, bindResult{Type: typeBindResult, Error: errBind, Message: "binding unavailable, try again later"})
		return
	}
	if out.Status == binding.StatusAlreadyBound {
		s.reply(ctx, conn, outcomeFrame(out))
		return
	}

	out, err = s.flow.Submit(ctx, userID, "", d.Label)
	if err != nil {
		slog.Error("gateway: binding submit failed", "user_id", userID, "label", d.Label, "err", err)
		s.reply(ctx, conn, bindResult{Type: typeBindResult, Error: errBind, Message: "binding failed, try again later"})
		return
	}
	s.reply(ctx, conn, outcomeFrame(out))
}

// handleBindLabel resolves a client-named label during a pending bind.
func (s *Server) handleBindLabel(ctx context.Context, conn *websocket.Conn, userID string, raw json.RawMessage) {
	var f bindLabel
	if err := json.Unmarshal(raw, &f); err != nil || f.Label == "" {
		s.reply(ctx, conn, bindResult{Type: typeBindResult, Error: errBind, Message: "malformed bind_label"})
		return
	}

	out, err := s.flow.Submit(ctx, userID, f.DisplayName, f.Label)
	switch {
	case errors.Is(err, binding.ErrNotAwaiting):
		s.reply(ctx, conn, bindResult{Type: typeBindResult, Error: errNotAwaiting, Message: "no pending bind, log in by voice first"})
	case err != nil:
		slog.Error("gateway: binding submit failed", "user_id", userID, "err", err)
		s.reply(ctx, conn, bindResult{Type: typeBindResult, Error: errBind, Message: "binding failed, try again later"})
	default:
		s.reply(ctx, conn, outcomeFrame(out))
	}
}

// record appends the decision to the audit trail, best-effort.
func (s *Server) record(ctx context.Context, userID string, d auth.Decision) {
	if s.trail == nil {
		return
	}
	if err := s.trail.Record(ctx, audit.NewEvent(userID, d)); err != nil {
		slog.Warn("gateway: audit record failed", "user_id", userID, "err", err)
	}
}

// reply writes one frame and logs instead of failing: a write error means
// the connection is going away, which the read loop will see next.
func (s *Server) reply(ctx context.Context, conn *websocket.Conn, frame any) {
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		slog.Debug("gateway: write failed", "err", err)
	}
}

// keepalive pings the peer until the connection context ends. The read
// loop is always consuming frames, so pongs are processed as they arrive.
func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn, userID string) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				slog.Info("gateway: keepalive failed, closing", "user_id", userID, "err", err)
				_ = conn.Close(websocket.StatusGoingAway, "keepalive timeout")
				return
			}
		}
	}
}

// anonID names a connection that arrived without a user parameter.
func anonID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "guest-" + hex.EncodeToString(b[:])
}
