package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{"both empty", "", "", 0},
		{"left empty", "", "Juan Perez", 0},
		{"right empty", "Juan Perez", "", 0},
		{"punctuation only normalizes to empty", "...", "...", 0},
		{"identical", "Juan Perez", "Juan Perez", 1.0},
		{"equal after normalization", "Juan Pérez López", "JUAN PEREZ LOPEZ", 1.0},
		{"containment", "Juan Perez", "Juan Perez Lopez", 0.9},
		{"reordered tokens", "Lopez Juan Perez", "Juan Perez Lopez", 1.0},
		{"partial overlap", "Maria de la Luz Garcia", "Maria Garcia Torres", 4.0 / 6.0},
		{"short tokens only", "Al Bo", "Ed Jo", 0},
		{"disjoint", "Roberto Mendez", "Ana Beltran", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Score(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScorer_Properties(t *testing.T) {
	scorer := NewScorer()
	names := []string{
		"Juan Pérez López",
		"juan perez",
		"Perez Juan",
		"Juan Carlos Perez",
		"María de la Luz García",
		"Garcia Maria",
		"Transportes del Norte SA de CV",
		"Transportes del Norte",
		"Al Bo",
		"x",
	}

	t.Run("self similarity is one", func(t *testing.T) {
		for _, n := range names {
			assert.Equal(t, 1.0, scorer.Score(n, n), n)
		}
	})

	t.Run("empty scores zero", func(t *testing.T) {
		for _, n := range names {
			assert.Equal(t, 0.0, scorer.Score("", n), n)
			assert.Equal(t, 0.0, scorer.Score(n, ""), n)
		}
	})

	t.Run("symmetric and bounded", func(t *testing.T) {
		for _, a := range names {
			for _, b := range names {
				ab := scorer.Score(a, b)
				assert.Equal(t, ab, scorer.Score(b, a), "%q vs %q", a, b)
				assert.GreaterOrEqual(t, ab, 0.0)
				assert.LessOrEqual(t, ab, 1.0)
			}
		}
	})

	t.Run("substring scores at least containment", func(t *testing.T) {
		assert.GreaterOrEqual(t, scorer.Score("Transportes del Norte", "Transportes del Norte SA de CV"), 0.9)
		assert.GreaterOrEqual(t, scorer.Score("juan perez", "Juan Pérez López"), 0.9)
	})
}

func TestScorer_Options(t *testing.T) {
	t.Run("custom containment score", func(t *testing.T) {
		scorer := NewScorer(WithContainmentScore(0.85))
		assert.InDelta(t, 0.85, scorer.Score("Juan Perez", "Juan Perez Lopez"), 1e-9)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		scorer := NewScorer()
		assert.Equal(t, DefaultSimilarityThreshold, scorer.Threshold())
		assert.False(t, scorer.Accepts(0.8))
		assert.True(t, scorer.Accepts(0.81))
	})

	t.Run("custom threshold", func(t *testing.T) {
		scorer := NewScorer(WithThreshold(0.5))
		assert.True(t, scorer.Accepts(0.6))
		assert.False(t, scorer.Accepts(0.5))
	})

	t.Run("min token length", func(t *testing.T) {
		// "ana" and "ruiz" share nothing once tokens shorter than 5 are dropped
		scorer := NewScorer(WithMinTokenLength(5))
		assert.Equal(t, 0.0, scorer.Score("Ana Ruiz", "Ruiz Ana"))
		assert.Equal(t, 1.0, NewScorer().Score("Ana Ruiz", "Ruiz Ana"))
	})
}

func TestScorer_Prepare(t *testing.T) {
	scorer := NewScorer()

	n := scorer.Prepare("María de la Luz")
	assert.Equal(t, "maria de la luz", n.Text)
	assert.Len(t, n.tokens, 2)
	assert.Contains(t, n.tokens, "maria")
	assert.Contains(t, n.tokens, "luz")

	assert.True(t, scorer.Prepare("  ").IsEmpty())
}
