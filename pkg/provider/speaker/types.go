package speaker

import "sort"

// Candidate is one ranked hypothesis from a classifier.
type Candidate struct {
	// Label is the enrolled speaker identity.
	Label string

	// Score is the model's confidence in [0.0, 1.0].
	Score float64
}

// Classification is the outcome of classifying one audio window.
type Classification struct {
	// Label is the top-ranked speaker label.
	Label string

	// Score is the top-ranked score.
	Score float64

	// Ranked lists all hypotheses in descending score order.
	Ranked []Candidate

	// Margin is the separation between the two best scores, or the best
	// score itself when only one hypothesis exists. Never negative when
	// built through NewClassification.
	Margin float64

	// Embedding is the probe voiceprint vector, when the backend exposes
	// one. Nil otherwise.
	Embedding []float32
}

// NewClassification builds a Classification from unordered candidates. It
// sorts them by descending score (ties keep their input order) and derives
// the top label and the margin. An empty candidate list yields the zero
// Classification.
func NewClassification(candidates []Candidate) Classification {
	if len(candidates) == 0 {
		return Classification{}
	}
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	margin := ranked[0].Score
	if len(ranked) >= 2 {
		margin = ranked[0].Score - ranked[1].Score
	}
	return Classification{
		Label:  ranked[0].Label,
		Score:  ranked[0].Score,
		Ranked: ranked,
		Margin: margin,
	}
}
