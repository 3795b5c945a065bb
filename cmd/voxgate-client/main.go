// Command voxgate-client streams a WAV file at a running voxgate server
// and prints the decision. It speaks the same websocket protocol real
// clients do, which makes it a handy smoke test for a deployment:
//
//	voxgate-client -server ws://localhost:8080 -user alice testdata/alice.wav
//
// With -label it follows a USER_NOT_BOUND login straight into the
// binding flow; with -greeting-out it saves the synthesized greeting.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxgate/voxgate/pkg/audio"
)

// maxReplyBytes raises the library's default read limit so result frames
// carrying base64 greeting audio fit.
const maxReplyBytes = 1 << 20

func main() {
	os.Exit(run())
}

func run() int {
	var (
		server     = flag.String("server", "ws://localhost:8080", "server base URL")
		user       = flag.String("user", "", "client id to connect as (empty: server assigns a guest id)")
		mode       = flag.String("mode", "login", "audio_stop mode, login or bind")
		label      = flag.String("label", "", "label to submit when login answers USER_NOT_BOUND")
		chunkMs    = flag.Int("chunk-ms", 200, "milliseconds of audio per chunk")
		greetingTo = flag.String("greeting-out", "", "write the greeting MP3 to this file")
		timeout    = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: voxgate-client [flags] <file.wav>")
		flag.PrintDefaults()
		return 2
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: %v\n", err)
		return 1
	}
	pcm, format, err := audio.DecodeWAV(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: %s: %v\n", path, err)
		return 1
	}
	if format.Channels > 2 {
		fmt.Fprintf(os.Stderr, "voxgate-client: %s has %d channels, only mono and stereo are supported\n", path, format.Channels)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	wsURL := strings.TrimSuffix(*server, "/") + "/ws"
	if *user != "" {
		wsURL += "?user=" + url.QueryEscape(*user)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: dial %s: %v\n", wsURL, err)
		return 1
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(maxReplyBytes)

	start := map[string]any{
		"type":        "audio_start",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
		"codec":       "pcm16",
	}
	if err := wsjson.Write(ctx, conn, start); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: send audio_start: %v\n", err)
		return 1
	}
	ack, err := read(ctx, conn)
	if err != nil {
		return 1
	}
	if ack["type"] != "voice_login_status" {
		fmt.Fprintf(os.Stderr, "voxgate-client: server refused capture: %s\n", describe(ack))
		return 1
	}

	fmt.Printf("streaming %s: %s of %dHz %d-channel PCM\n",
		path, audio.Duration(len(pcm)/format.Channels, format.SampleRate).Round(time.Millisecond), format.SampleRate, format.Channels)
	if err := stream(ctx, conn, pcm, format, *chunkMs); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: %v\n", err)
		return 1
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "audio_stop", "mode": *mode}); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: send audio_stop: %v\n", err)
		return 1
	}

	for {
		m, err := read(ctx, conn)
		if err != nil {
			return 1
		}
		switch m["type"] {
		case "voice_login_result":
			code := printLogin(m, *greetingTo)
			if str(m, "error") == "USER_NOT_BOUND" && *label != "" {
				// The server follows up with a bind prompt.
				continue
			}
			return code
		case "bind_result":
			if str(m, "status") == "prompt" {
				fmt.Printf("bind prompt: available labels %v\n", m["available"])
				if *label == "" {
					return 1
				}
				if err := wsjson.Write(ctx, conn, map[string]any{"type": "bind_label", "label": *label}); err != nil {
					fmt.Fprintf(os.Stderr, "voxgate-client: send bind_label: %v\n", err)
					return 1
				}
				continue
			}
			return printBind(m)
		case "error":
			fmt.Fprintf(os.Stderr, "voxgate-client: server error: %v\n", m["error"])
			return 1
		default:
			fmt.Printf("server: %s\n", describe(m))
		}
	}
}

// stream sends pcm as whole-frame chunks of roughly chunkMs each.
func stream(ctx context.Context, conn *websocket.Conn, pcm []byte, format audio.Format, chunkMs int) error {
	frameBytes := format.Channels * audio.BytesPerSample
	chunk := format.SampleRate * frameBytes * chunkMs / 1000
	chunk -= chunk % frameBytes
	if chunk < frameBytes {
		chunk = frameBytes
	}
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		frame := map[string]any{
			"type": "audio_chunk",
			"data": base64.StdEncoding.EncodeToString(pcm[off:end]),
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return fmt.Errorf("send audio_chunk at byte %d: %w", off, err)
		}
	}
	return nil
}

// printLogin reports a voice_login_result and returns the exit code.
func printLogin(m map[string]any, greetingTo string) int {
	if m["success"] == true {
		fmt.Printf("accepted: label=%s user=%s score=%.3f", str(m, "label"), str(m, "user"), num(m, "score"))
		if e := str(m, "emotion"); e != "" {
			fmt.Printf(" emotion=%s", e)
		}
		if n := str(m, "note"); n != "" {
			fmt.Printf(" note=%s", n)
		}
		fmt.Println()
		if g := str(m, "greeting"); g != "" {
			fmt.Printf("greeting: %q\n", g)
		}
		saveGreeting(str(m, "greeting_audio"), greetingTo)
		return 0
	}
	fmt.Printf("rejected: %s", str(m, "error"))
	if s := num(m, "score"); s > 0 {
		fmt.Printf(" score=%.3f", s)
	}
	if msg := str(m, "message"); msg != "" {
		fmt.Printf(" (%s)", msg)
	}
	fmt.Println()
	return 1
}

// printBind reports a terminal bind_result and returns the exit code.
func printBind(m map[string]any) int {
	if e := str(m, "error"); e != "" {
		fmt.Printf("bind failed: %s", e)
		if msg := str(m, "message"); msg != "" {
			fmt.Printf(" (%s)", msg)
		}
		fmt.Println()
		return 1
	}
	status := str(m, "status")
	fmt.Printf("bind %s: label=%s", status, str(m, "label"))
	if c := num(m, "confidence"); c > 0 {
		fmt.Printf(" confidence=%.3f", c)
	}
	fmt.Println()
	if status == "bound" || status == "already_bound" {
		return 0
	}
	return 1
}

func saveGreeting(b64, path string) {
	if b64 == "" || path == "" {
		return
	}
	mp3, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: greeting audio is not valid base64: %v\n", err)
		return
	}
	if err := os.WriteFile(path, mp3, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: write greeting: %v\n", err)
		return
	}
	fmt.Printf("greeting audio: %d bytes written to %s\n", len(mp3), path)
}

func read(ctx context.Context, conn *websocket.Conn) (map[string]any, error) {
	var m map[string]any
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		fmt.Fprintf(os.Stderr, "voxgate-client: read reply: %v\n", err)
		return nil, err
	}
	return m, nil
}

// describe renders an unexpected frame compactly for error messages.
func describe(m map[string]any) string {
	parts := make([]string, 0, len(m))
	for _, k := range []string{"type", "status", "error", "message"} {
		if v := str(m, k); v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
