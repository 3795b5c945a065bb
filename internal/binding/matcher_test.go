package binding_test

import (
	"testing"

	"github.com/voxgate/voxgate/internal/binding"
)

func TestMatcher_ExactCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()
	labels := []string{"MeiLing", "alice", "bob"}

	label, conf, ok := m.Resolve("ALICE", labels)
	if !ok {
		t.Fatalf("Resolve(%q): ok=false, want true", "ALICE")
	}
	if label != "alice" {
		t.Errorf("Resolve(%q): label=%q, want %q", "ALICE", label, "alice")
	}
	if conf != 1 {
		t.Errorf("Resolve(%q): confidence=%f, want 1", "ALICE", conf)
	}

	// Exact hits return the canonical spelling, not the input.
	label, _, ok = m.Resolve("meiling", labels)
	if !ok || label != "MeiLing" {
		t.Errorf("Resolve(%q): label=%q ok=%v, want canonical %q", "meiling", label, ok, "MeiLing")
	}
}

func TestMatcher_PhoneticMisspelling(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()
	labels := []string{"alice", "bob"}

	// A transcription slip: same consonant skeleton, different spelling.
	label, conf, ok := m.Resolve("alise", labels)
	if !ok {
		t.Fatalf("Resolve(%q): ok=false, want true", "alise")
	}
	if label != "alice" {
		t.Errorf("Resolve(%q): label=%q, want %q", "alise", label, "alice")
	}
	if conf < 0.7 {
		t.Errorf("Resolve(%q): confidence=%f, want >= 0.7", "alise", conf)
	}
}

func TestMatcher_SpaceStripped(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()

	// STT often splits a name; the concatenated comparison catches it.
	label, conf, ok := m.Resolve("mei ling", []string{"meiling", "jiahao"})
	if !ok {
		t.Fatalf("Resolve(%q): ok=false, want true", "mei ling")
	}
	if label != "meiling" {
		t.Errorf("Resolve(%q): label=%q, want %q", "mei ling", label, "meiling")
	}
	if conf != 1 {
		t.Errorf("Resolve(%q): confidence=%f, want 1 from the stripped comparison", "mei ling", conf)
	}
}

func TestMatcher_BestTokenPair(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()

	// One spoken word lines up with one word of a multi-word label.
	label, _, ok := m.Resolve("ling", []string{"mei ling", "jiahao"})
	if !ok {
		t.Fatalf("Resolve(%q): ok=false, want true", "ling")
	}
	if label != "mei ling" {
		t.Errorf("Resolve(%q): label=%q, want %q", "ling", label, "mei ling")
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()

	label, conf, ok := m.Resolve("xyz", []string{"alice", "bob"})
	if ok {
		t.Fatalf("Resolve(%q): ok=true, want false", "xyz")
	}
	if label != "" || conf != 0 {
		t.Errorf("Resolve(%q) = (%q, %f), want empty label and 0 confidence", "xyz", label, conf)
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := binding.NewMatcher()

	if _, _, ok := m.Resolve("   ", []string{"alice"}); ok {
		t.Error("Resolve of blank input should not match")
	}
	if _, _, ok := m.Resolve("alice", nil); ok {
		t.Error("Resolve against no labels should not match")
	}
}

func TestMatcher_ThresholdOptions(t *testing.T) {
	t.Parallel()

	strict := binding.NewMatcher(
		binding.WithPhoneticThreshold(0.99),
		binding.WithFuzzyThreshold(0.99),
	)

	// Near-misses fall below a strict threshold.
	if _, _, ok := strict.Resolve("alise", []string{"alice"}); ok {
		t.Error("strict matcher should reject a near-miss spelling")
	}

	// Exact-after-stripping still scores 1.0 and passes any threshold.
	if _, _, ok := strict.Resolve("mei ling", []string{"meiling"}); !ok {
		t.Error("strict matcher should keep accepting perfect stripped matches")
	}

	// Exact matches bypass thresholds entirely.
	if _, conf, ok := strict.Resolve("alice", []string{"alice"}); !ok || conf != 1 {
		t.Error("strict matcher should keep accepting exact matches")
	}
}
