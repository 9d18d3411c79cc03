package matching

import (
	"strings"
	"unicode/utf8"
)

// Default scoring parameters. They are empirical and kept configurable.
const (
	DefaultSimilarityThreshold = 0.8
	DefaultContainmentScore    = 0.9
	DefaultMinTokenLength      = 3
)

// Name is a normalized name with its significant tokens, prepared once so
// that it can be compared against many other names.
type Name struct {
	Text   string
	tokens map[string]struct{}
}

// IsEmpty reports whether nothing survived normalization
func (n Name) IsEmpty() bool {
	return n.Text == ""
}

// Scorer computes a [0,1] similarity between two names.
type Scorer struct {
	threshold      float64
	containment    float64
	minTokenLength int
}

// ScorerOption is a functional option for configuring the scorer
type ScorerOption func(*Scorer)

// WithThreshold sets the acceptance threshold used by Accepts
func WithThreshold(threshold float64) ScorerOption {
	return func(s *Scorer) {
		s.threshold = threshold
	}
}

// WithContainmentScore sets the score given when one name contains the other
func WithContainmentScore(score float64) ScorerOption {
	return func(s *Scorer) {
		s.containment = score
	}
}

// WithMinTokenLength sets the shortest token that counts in the overlap step
func WithMinTokenLength(n int) ScorerOption {
	return func(s *Scorer) {
		s.minTokenLength = n
	}
}

// NewScorer creates a scorer with the default parameters
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		threshold:      DefaultSimilarityThreshold,
		containment:    DefaultContainmentScore,
		minTokenLength: DefaultMinTokenLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the acceptance threshold
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Accepts reports whether score is strictly above the threshold
func (s *Scorer) Accepts(score float64) bool {
	return score > s.threshold
}

// Prepare normalizes raw and extracts its significant tokens
func (s *Scorer) Prepare(raw string) Name {
	text := Normalize(raw)
	n := Name{Text: text}
	if text == "" {
		return n
	}
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) < s.minTokenLength {
			continue
		}
		if n.tokens == nil {
			n.tokens = make(map[string]struct{})
		}
		n.tokens[tok] = struct{}{}
	}
	return n
}

// Score normalizes both inputs and compares them
func (s *Scorer) Score(a, b string) float64 {
	return s.Compare(s.Prepare(a), s.Prepare(b))
}

// Compare scores two prepared names. Rules are applied in order and the
// first that applies wins: empty, equal, containment, token overlap.
func (s *Scorer) Compare(a, b Name) float64 {
	if a.IsEmpty() || b.IsEmpty() {
		return 0
	}
	if a.Text == b.Text {
		return 1.0
	}
	if strings.Contains(a.Text, b.Text) || strings.Contains(b.Text, a.Text) {
		return s.containment
	}
	if len(a.tokens) == 0 || len(b.tokens) == 0 {
		return 0
	}

	small, large := a.tokens, b.tokens
	if len(small) > len(large) {
		small, large = large, small
	}
	common := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			common++
		}
	}
	return float64(2*common) / float64(len(a.tokens)+len(b.tokens))
}
