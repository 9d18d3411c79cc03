package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \t\n ", ""},
		{"lower cases", "JUAN PEREZ", "juan perez"},
		{"strips accents", "Juan Pérez López", "juan perez lopez"},
		{"strips tilde", "Ñandú", "nandu"},
		{"collapses whitespace", "  Maria    de   la  Luz ", "maria de la luz"},
		{"drops punctuation", "O'Brien-Smith, Jr.", "obriensmith jr"},
		{"keeps digits", "Transportes 2000 S.A.", "transportes 2000 sa"},
		{"non breaking space", "José\u00a0María", "jose maria"},
		{"tabs and newlines", "Ana\tSofía\nRuiz", "ana sofia ruiz"},
		{"only punctuation", "...,;!", ""},
		{"dotted capital i", "İsmael", "ismael"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Juan Pérez López",
		"  GARCÍA   hernández ",
		"Seguros Ñ&Ü, S.A. de C.V.",
		"İstanbul Çelik",
		"Zoë   Brontë-Ågren",
		"123 456",
		"façadé",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
