package codec

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/lexgo/model"
)

// bloomFilter answers "definitely absent" for a segment's terms so that
// delete-by-term can skip segments without a dictionary lookup.
type bloomFilter struct {
	bits    *bitset.BitSet
	numBits uint64
	k       uint64
}

// bloomSize returns the bit count and hash count for n elements at the
// given false positive rate.
func bloomSize(n int, fpr float64) (uint64, uint64) {
	n = max(n, 1)
	m := -float64(n) * math.Log(fpr) / (math.Ln2 * math.Ln2)
	numBits := max((uint64(m)+63)/64*64, 64)
	k := uint64(math.Ceil(m / float64(n) * math.Ln2))
	return numBits, min(max(k, 1), 16)
}

func newBloomFilter(n int) *bloomFilter {
	numBits, k := bloomSize(n, 0.01)
	return &bloomFilter{bits: bitset.New(uint(numBits)), numBits: numBits, k: k}
}

func (bf *bloomFilter) add(t model.Term) {
	h1, h2 := termHash(t)
	for i := range bf.k {
		bf.bits.Set(uint((h1 + i*h2) % bf.numBits))
	}
}

func (bf *bloomFilter) mayContain(t model.Term) bool {
	h1, h2 := termHash(t)
	for i := range bf.k {
		if !bf.bits.Test(uint((h1 + i*h2) % bf.numBits)) {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) sizeBytes() int64 {
	return int64(bf.numBits / 8)
}

// termHash returns two FNV-1a hashes of field NUL text for double hashing,
// one forward and one reversed. h2 is odd.
func termHash(t model.Term) (h1, h2 uint64) {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h1 = offset
	for i := 0; i < len(t.Field); i++ {
		h1 ^= uint64(t.Field[i])
		h1 *= prime
	}
	h1 *= prime
	for i := 0; i < len(t.Text); i++ {
		h1 ^= uint64(t.Text[i])
		h1 *= prime
	}

	h2 = offset ^ 0x5555555555555555
	for i := len(t.Text) - 1; i >= 0; i-- {
		h2 ^= uint64(t.Text[i])
		h2 *= prime
	}
	h2 *= prime
	for i := len(t.Field) - 1; i >= 0; i-- {
		h2 ^= uint64(t.Field[i])
		h2 *= prime
	}
	return h1, h2 | 1
}

// buildBloom indexes every term of s.
func (s *Segment) buildBloom() {
	bf := newBloomFilter(s.NumTerms())
	for name, f := range s.fields {
		for _, text := range f.terms {
			bf.add(model.Term{Field: name, Text: text})
		}
	}
	s.bloom = bf
}

// MayContain reports whether t can occur in s. False is definitive.
func (s *Segment) MayContain(t model.Term) bool {
	if s.bloom == nil {
		return true
	}
	return s.bloom.mayContain(t)
}
