package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/model"
)

func TestBloomSize(t *testing.T) {
	bits, k := bloomSize(1000, 0.01)
	assert.Equal(t, uint64(0), bits%64)
	assert.InDelta(t, 9585, float64(bits), 64)
	assert.Equal(t, uint64(7), k)

	bits, k = bloomSize(0, 0.01)
	assert.Equal(t, uint64(64), bits)
	assert.GreaterOrEqual(t, k, uint64(1))
}

func TestBloomNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter(5000)
	for i := range 5000 {
		bf.add(model.NewTerm("id", fmt.Sprintf("doc-%d", i)))
	}
	for i := range 5000 {
		require.True(t, bf.mayContain(model.NewTerm("id", fmt.Sprintf("doc-%d", i))))
	}

	var fp int
	for i := range 10000 {
		if bf.mayContain(model.NewTerm("id", fmt.Sprintf("other-%d", i))) {
			fp++
		}
	}
	assert.Less(t, fp, 300)
}

func TestBloomSeparatesFields(t *testing.T) {
	bf := newBloomFilter(1)
	bf.add(model.NewTerm("ab", "c"))
	assert.True(t, bf.mayContain(model.NewTerm("ab", "c")))
	assert.False(t, bf.mayContain(model.NewTerm("a", "bc")))
}

func TestSegmentMayContain(t *testing.T) {
	s := buildSample(t)
	assert.True(t, s.MayContain(model.NewTerm("body", "fox")))
	assert.False(t, s.MayContain(model.NewTerm("body", "zebra")) && s.DocFreq(model.NewTerm("body", "zebra")) > 0)

	data, err := Marshal(s, CompressionNone)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.MayContain(model.NewTerm("id", "b")))
	assert.Equal(t, 1, got.DocFreq(model.NewTerm("id", "b")))
}
