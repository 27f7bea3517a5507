package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	t1 := rng.Text(10)
	b1 := rng.Bytes(16)

	rng.Reset()
	assert.Equal(t, t1, rng.Text(10))
	assert.Equal(t, b1, rng.Bytes(16))
}

func TestText(t *testing.T) {
	rng := NewRNG(42)
	words := strings.Fields(rng.Text(50))
	assert.Len(t, words, 50)
	for _, w := range words {
		assert.Contains(t, Vocabulary, w)
	}
}

func TestZipfSkew(t *testing.T) {
	rng := NewRNG(7)
	counts := make([]int, 10)
	for range 5000 {
		counts[rng.Zipf(10, 1.5)]++
	}
	assert.Greater(t, counts[0], counts[9]*5)
}
