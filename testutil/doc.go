// Package testutil provides deterministic test data for lexgo.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(4711)
//	text := rng.Text(20)          // 20 Zipf-distributed words
//	payload := rng.Bytes(1 << 10) // random bytes
package testutil
