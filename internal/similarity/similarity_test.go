package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Horizon Stadium", "horizon stadium"},
		{"strips diacritics", "Théâtre des Champs-Élysées", "theatre des champs elysees"},
		{"collapses punctuation", "O2  Arena -- London!", "o2 arena london"},
		{"trims edges", "  (Stadium)  ", "stadium"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestLexical_Identical(t *testing.T) {
	sim := Lexical()
	score, err := sim(context.Background(), "Horizon Stadium, Berlin", "horizon stadium berlin")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestLexical_Disjoint(t *testing.T) {
	sim := Lexical()
	score, err := sim(context.Background(), "aquarium expansion in Osaka", "nightclub refit downtown Lima")
	require.NoError(t, err)
	assert.Less(t, score, 0.5)
}

func TestLexical_EmptyInput(t *testing.T) {
	sim := Lexical()
	score, err := sim(context.Background(), "", "anything")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestLexical_SimilarButNotIdentical(t *testing.T) {
	sim := Lexical()
	a := "New Horizon Stadium announced for Berlin"
	b := "Horizon Stadium in Berlin announced"
	score, err := sim(context.Background(), a, b)
	require.NoError(t, err)
	assert.Greater(t, score, 0.5)
	assert.Less(t, score, 1.0)
}
