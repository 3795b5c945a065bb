// Package binding implements voice account enrollment: a per-user state
// machine that walks a client from "bind my voice" to a confirmed
// label↔user binding, plus the label resolution that maps what the user
// said to one of the speaker backend's enrolled labels.
//
// Labels are spoken and transcribed before they reach this package, so
// resolution cannot rely on exact spelling. It proceeds in three stages:
//
//  1. Exact match, case-insensitive. A hit binds the canonical spelling.
//  2. Phonetic candidate filtering: Double Metaphone codes are computed
//     for each token of the input and of each enrolled label. Any code
//     overlap makes the label a candidate, ranked by Jaro-Winkler
//     similarity against a configurable threshold (default 0.70).
//  3. Fuzzy fallback: when no label overlaps phonetically, pure
//     Jaro-Winkler similarity is tested against a stricter threshold
//     (default 0.85).
package binding

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched label to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves transcribed speech to enrolled speaker labels.
// All methods are safe for concurrent use — the Matcher is read-only after
// construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a new [Matcher] configured with the supplied options.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Resolve maps input to the enrolled label it most plausibly names.
//
// input may be a single word or a space-separated phrase. An exact
// case-insensitive hit returns that label with confidence 1. Otherwise the
// phonetic and fuzzy stages run as described in the package documentation.
//
// When ok is false, label is empty and confidence is 0.
func (m *Matcher) Resolve(input string, labels []string) (label string, confidence float64, ok bool) {
	inputLower := strings.ToLower(strings.TrimSpace(input))
	if len(labels) == 0 || inputLower == "" {
		return "", 0, false
	}

	for _, l := range labels {
		if strings.EqualFold(strings.TrimSpace(l), inputLower) {
			return l, 1, true
		}
	}

	inputTokens := strings.Fields(inputLower)
	inputCodes := codesForTokens(inputTokens)

	type candidate struct {
		label    string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, l := range labels {
		labelLower := strings.ToLower(strings.TrimSpace(l))
		if labelLower == "" {
			continue
		}
		labelTokens := strings.Fields(labelLower)

		labelCodes := codesForTokens(labelTokens)
		phoneticMatch := codesOverlap(inputCodes, labelCodes)

		jwScore := bestJWScore(inputTokens, labelTokens, inputLower, labelLower)

		if phoneticMatch {
			if jwScore >= m.phoneticThreshold {
				if !best.phonetic || jwScore > best.score {
					best = candidate{label: l, score: jwScore, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if jwScore >= m.fuzzyThreshold && jwScore > best.score {
				best = candidate{label: l, score: jwScore, phonetic: false}
			}
		}
	}

	if best.label != "" {
		return best.label, best.score, true
	}
	return "", 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or contains
// no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the label using three strategies:
//
//  1. Full-string comparison.
//  2. Space-stripped comparison, so "mei ling" can meet "meiling".
//  3. Best pairwise token comparison, for when one spoken word corresponds
//     to one label word.
func bestJWScore(inputTokens, labelTokens []string, inputFull, labelFull string) float64 {
	score := matchr.JaroWinkler(inputFull, labelFull, false)

	if len(inputTokens) > 1 || len(labelTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(labelTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, lt := range labelTokens {
			if s := matchr.JaroWinkler(it, lt, false); s > score {
				score = s
			}
		}
	}

	return score
}
