// Package welcome composes the post-login greeting.
//
// The greeting is assembled from fixed rule tables keyed on the local time
// of day and the emotion inferred during authentication, so for a given
// name, instant and emotion the output is fully deterministic. When a TTS
// provider is configured the greeting is also rendered to audio; synthesis
// failure degrades to text-only and never fails the login.
package welcome

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/pkg/provider/emotion"
	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// Period is a named slice of the day.
type Period string

const (
	PeriodEarlyMorning Period = "early_morning" // 05–09
	PeriodMorning      Period = "morning"       // 09–12
	PeriodNoon         Period = "noon"          // 12–14
	PeriodAfternoon    Period = "afternoon"     // 14–18
	PeriodDusk         Period = "dusk"          // 18–20
	PeriodEvening      Period = "evening"       // 20–23
	PeriodLateNight    Period = "late_night"    // 23–02
	PeriodPreDawn      Period = "pre_dawn"      // 02–05
)

// PeriodOf maps an hour of day (0–23) to its period.
func PeriodOf(hour int) Period {
	switch {
	case hour >= 5 && hour < 9:
		return PeriodEarlyMorning
	case hour >= 9 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 14:
		return PeriodNoon
	case hour >= 14 && hour < 18:
		return PeriodAfternoon
	case hour >= 18 && hour < 20:
		return PeriodDusk
	case hour >= 20 && hour < 23:
		return PeriodEvening
	case hour >= 23 || hour < 2:
		return PeriodLateNight
	default:
		return PeriodPreDawn
	}
}

// The service greets in Chinese; these tables are product copy, not
// placeholders.
var greetByPeriod = map[Period]string{
	PeriodEarlyMorning: "早安",
	PeriodMorning:      "早安",
	PeriodNoon:         "午安",
	PeriodAfternoon:    "下午好",
	PeriodDusk:         "晚安",
	PeriodEvening:      "晚上好",
	PeriodLateNight:    "夜安",
	PeriodPreDawn:      "夜安",
}

const greetDefault = "您好"

var moodByEmotion = map[string]string{
	emotion.Happy:    "您今天心情感覺不錯喔！",
	emotion.Sad:      "今天心情有點低落，我在這陪你。",
	emotion.Angry:    "看起來有點不爽，想聊聊發生什麼事嗎？",
	emotion.Fear:     "別擔心，有我在，慢慢來。",
	emotion.Surprise: "哇，今天似乎有新鮮事！",
	emotion.Neutral:  "很高興再次見到你！",
}

const moodDefault = "很高興再次見到你！"

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "星期一",
	time.Tuesday:   "星期二",
	time.Wednesday: "星期三",
	time.Thursday:  "星期四",
	time.Friday:    "星期五",
	time.Saturday:  "星期六",
	time.Sunday:    "星期日",
}

// Option configures a Greeter.
type Option func(*Greeter)

// WithLocation sets the time zone the greeting clock reads. Default:
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(g *Greeter) { g.loc = loc }
}

// WithTTS enables audio rendering of greetings through the given provider.
func WithTTS(p tts.Provider) Option {
	return func(g *Greeter) { g.tts = p }
}

// WithVoice selects the TTS voice profile. Empty means the provider
// default.
func WithVoice(voice string) Option {
	return func(g *Greeter) { g.voice = voice }
}

// WithMetrics sets the metrics sink for synthesis calls.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Greeter) { g.metrics = m }
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) Option {
	return func(g *Greeter) { g.now = now }
}

// Greeter composes greetings and optionally renders them to speech.
// It is read-only after construction and safe for concurrent use.
type Greeter struct {
	loc     *time.Location
	tts     tts.Provider
	voice   string
	metrics *observe.Metrics
	now     func() time.Time
}

// New returns a Greeter configured with the supplied options.
func New(opts ...Option) *Greeter {
	g := &Greeter{
		loc:     time.Local,
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Compose builds the greeting text for displayName at instant t, adjusted
// by the emotion label when one is known.
func (g *Greeter) Compose(displayName, emotionLabel string, t time.Time) string {
	name := displayName
	if name == "" {
		name = "用戶"
	}
	t = t.In(g.loc)

	greet, ok := greetByPeriod[PeriodOf(t.Hour())]
	if !ok {
		greet = greetDefault
	}
	mood, ok := moodByEmotion[emotionLabel]
	if !ok {
		mood = moodDefault
	}

	return fmt.Sprintf("%s%s！今天是%d月%d號%s，%s有什麼要與我分享呢？",
		name, greet, int(t.Month()), t.Day(), weekdayNames[t.Weekday()], mood)
}

// Greet composes the greeting for the current time and, when a TTS
// provider is configured, renders it to audio. The returned audio is nil
// when no provider is set or synthesis fails; the text greeting always
// comes back.
func (g *Greeter) Greet(ctx context.Context, displayName, emotionLabel string) (text string, audio []byte) {
	text = g.Compose(displayName, emotionLabel, g.now())
	if g.tts == nil {
		return text, nil
	}

	start := time.Now()
	audio, err := g.tts.Synthesize(ctx, text, g.voice)
	g.metrics.RecordTTS(ctx, time.Since(start), err)
	if err != nil {
		slog.Warn("welcome: greeting synthesis failed, continuing text-only", "err", err)
		return text, nil
	}
	return text, audio
}
