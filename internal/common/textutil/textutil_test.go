package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Tensão 220V?", "tensao 220v"},
		{"  É  BIVOLT!! ", "e bivolt"},
		{"max-load (kg)", "max load kg"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), tt.in)
	}
}

func TestPhraseMatcher(t *testing.T) {
	m := NewPhraseMatcher([]string{"nut", "max load", "curto circuito", ""})

	phrase, ok := m.Match("What is the MAX load for a 10kg camera?")
	assert.True(t, ok)
	assert.Equal(t, "max load", phrase)

	_, ok = m.Match("Is it made with peanut-free nutrition?")
	assert.False(t, ok, "phrases match whole tokens only")

	_, ok = m.Match("Pode dar curto-circuito?")
	assert.True(t, ok)
}

func TestJaccard(t *testing.T) {
	a := ContentTokens("The color is black.")
	b := ContentTokens("It is black in color")
	c := ContentTokens("Weighs 2 kg")

	assert.InDelta(t, 1.0, Jaccard(a, b), 1e-9)
	assert.InDelta(t, 0.0, Jaccard(a, c), 1e-9)
	assert.InDelta(t, 1.0, Jaccard(map[string]struct{}{}, map[string]struct{}{}), 1e-9)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("It is black. It weighs 2 kg! Anything else")
	assert.Equal(t, []string{"It is black.", "It weighs 2 kg!", "Anything else"}, got)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 4, WordCount("  it is  black today "))
	assert.Equal(t, 0, WordCount(""))
}
