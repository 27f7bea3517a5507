package testutil

import (
	"math"
	"math/rand"
	"strings"
	"sync"
)

// Vocabulary is the word list Text draws from. Early words are the most
// frequent ones.
var Vocabulary = []string{
	"the", "of", "and", "index", "segment", "term", "delete", "update",
	"flush", "merge", "value", "field", "posting", "buffer", "stall", "thread",
	"query", "commit", "block", "slice", "reader", "writer", "frozen", "packet",
	"stream", "generation", "document", "analyzer", "token", "position",
	"frequency", "codec",
}

// RNG wraps math/rand with a seed that can be replayed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex

	zipfNorm map[zipfKey]float64
}

type zipfKey struct {
	n int
	s float64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand:     rand.New(rand.NewSource(seed)),
		seed:     seed,
		zipfNorm: make(map[zipfKey]float64),
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63 returns a non-negative pseudo-random int64.
func (r *RNG) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63()
}

// Bool returns a pseudo-random bool.
func (r *RNG) Bool() bool {
	return r.Intn(2) == 1
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Zipf returns a Zipfian-distributed value in [0, n): P(k) ∝ 1/k^s.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	key := zipfKey{n: n, s: s}
	hns, ok := r.zipfNorm[key]
	if !ok {
		for i := 1; i <= n; i++ {
			hns += 1.0 / math.Pow(float64(i), s)
		}
		r.zipfNorm[key] = hns
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}
	return n - 1
}

// Word returns a Zipf-distributed word from Vocabulary.
func (r *RNG) Word() string {
	return Vocabulary[r.Zipf(len(Vocabulary), 1.2)]
}

// Text returns n space-separated words.
func (r *RNG) Text(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for i := range n {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(Vocabulary[r.zipfLocked(len(Vocabulary), 1.2)])
	}
	return sb.String()
}
